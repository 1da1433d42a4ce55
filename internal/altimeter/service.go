// Package altimeter is the control loop: calibrate once against a known
// reference altitude, seed the smoothing filter, then sample, filter and
// publish on a fixed interval.
package altimeter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/filter"
	"cansat-altimeter/internal/sensors"
	"cansat-altimeter/internal/telemetry"
)

// ErrNotReady is returned by Step and Run before a successful Setup.
var ErrNotReady = errors.New("altimeter: not calibrated")

type State int

const (
	StateUninitialized State = iota
	// StateCalibrated means calibrated and seeded.
	StateCalibrated
	StateRunning
	// StateHalted is terminal: a sensor was not found during setup.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCalibrated:
		return "calibrated"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Config struct {
	Interval           time.Duration
	ReferenceAltitudeM float64
	SmoothingFactor    float64

	AccelRange sensors.AccelRange
	GyroRange  sensors.GyroRange
	Bandwidth  sensors.Bandwidth
}

// Indicator mirrors the running state on an external lamp.
type Indicator interface {
	Set(on bool) error
}

type Snapshot struct {
	State       State              `json:"state"`
	Calibration *baro.Calibration  `json:"calibration,omitempty"`
	Last        *telemetry.Reading `json:"last,omitempty"`

	// Climb rate of the filtered altitude, low-passed.
	VerticalSpeedMS float64 `json:"vertical_speed_ms"`
	// Highest filtered altitude seen since setup.
	MaxAltitudeM float64 `json:"max_altitude_m"`

	Cycles     uint64 `json:"cycles"`
	ReadErrors uint64 `json:"read_errors"`
	SinkErrors uint64 `json:"sink_errors"`
	LastError  string `json:"last_error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

type Service struct {
	cfg    Config
	baro   sensors.Barometer
	imu    sensors.IMU
	log    *zap.Logger
	sinks  []Sink
	ind    Indicator
	metric *Metrics

	now func() time.Time

	// Owned by the control goroutine.
	filter *filter.Exponential
	cal    baro.Calibration
	seq    uint64
	lastAt time.Time
	lastFA float64

	mu   sync.RWMutex
	snap Snapshot
}

type Option func(*Service)

func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

func WithIndicator(ind Indicator) Option {
	return func(s *Service) { s.ind = ind }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metric = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires a service. imu may be nil when no inertial sensor is fitted.
func New(cfg Config, b sensors.Barometer, imu sensors.IMU, log *zap.Logger, opts ...Option) (*Service, error) {
	if b == nil {
		return nil, fmt.Errorf("altimeter: barometer is nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("altimeter: interval must be > 0")
	}
	f, err := filter.NewExponential(cfg.SmoothingFactor)
	if err != nil {
		return nil, fmt.Errorf("altimeter: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:    cfg,
		baro:   b,
		imu:    imu,
		log:    log,
		filter: f,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.State
}

// Setup brings up the sensors, calibrates sea-level pressure from one sample
// taken at the reference altitude and seeds the filter.
//
// A sensor that is not found halts the service: exactly one error is logged
// for it, no further sensor access happens, and the returned error wraps
// sensors.ErrDeviceNotFound.
func (s *Service) Setup() error {
	if st := s.State(); st != StateUninitialized {
		return fmt.Errorf("altimeter: setup in state %s", st)
	}

	if err := s.baro.Begin(); err != nil {
		return s.beginFailed("barometer", err)
	}
	if s.imu != nil {
		if err := s.imu.Begin(); err != nil {
			return s.beginFailed("imu", err)
		}
		if err := s.configureIMU(); err != nil {
			return s.setupFailed(err)
		}
	}

	p, err := s.baro.ReadPressure()
	if err != nil {
		return s.setupFailed(fmt.Errorf("altimeter: calibration sample: %w", err))
	}
	cal := baro.Calibrate(p, s.cfg.ReferenceAltitudeM)

	seed, err := s.baro.ReadAltitude(cal.SeaLevelPressurePa)
	if err != nil {
		return s.setupFailed(fmt.Errorf("altimeter: seed sample: %w", err))
	}
	s.filter.Seed(seed)
	s.cal = cal
	s.lastFA = seed

	s.log.Info("calibrated",
		zap.Float64("reference_altitude_m", cal.ReferenceAltitudeM),
		zap.Float64("measured_pressure_pa", cal.MeasuredPressurePa),
		zap.Float64("sea_level_pressure_pa", cal.SeaLevelPressurePa),
		zap.Float64("seed_altitude_m", seed),
	)

	s.mu.Lock()
	s.snap.State = StateCalibrated
	s.snap.Calibration = &cal
	s.snap.MaxAltitudeM = seed
	s.snap.UpdatedAt = s.now()
	s.mu.Unlock()
	s.metric.setState(StateCalibrated)
	s.metric.setCalibration(cal)
	return nil
}

func (s *Service) configureIMU() error {
	if r := s.cfg.AccelRange; r != 0 {
		if err := s.imu.SetAccelRange(r); err != nil {
			return fmt.Errorf("altimeter: imu accel range: %w", err)
		}
	}
	if r := s.cfg.GyroRange; r != 0 {
		if err := s.imu.SetGyroRange(r); err != nil {
			return fmt.Errorf("altimeter: imu gyro range: %w", err)
		}
	}
	if b := s.cfg.Bandwidth; b != 0 {
		if err := s.imu.SetFilterBandwidth(b); err != nil {
			return fmt.Errorf("altimeter: imu bandwidth: %w", err)
		}
	}
	return nil
}

// beginFailed halts on a begin error. The log names the sensor the same way
// the returned DeviceError does; role says which slot it filled.
func (s *Service) beginFailed(role string, err error) error {
	if !errors.Is(err, sensors.ErrDeviceNotFound) {
		err = sensors.NotFound(role, err)
	}
	name := role
	var de *sensors.DeviceError
	if errors.As(err, &de) && de.Sensor != "" {
		name = de.Sensor
	}
	s.log.Error("sensor not found, halting",
		zap.String("sensor", name), zap.String("role", role), zap.Error(err))
	s.halt(err)
	return err
}

func (s *Service) setupFailed(err error) error {
	s.log.Error("setup failed, halting", zap.Error(err))
	s.halt(err)
	return err
}

func (s *Service) halt(err error) {
	s.mu.Lock()
	s.snap.State = StateHalted
	s.snap.LastError = err.Error()
	s.snap.UpdatedAt = s.now()
	s.mu.Unlock()
	s.metric.setState(StateHalted)
	s.setIndicator(false)
}

// Step runs one sample cycle. A failed read skips the cycle and leaves the
// filter untouched; the error is logged and returned but is never fatal.
func (s *Service) Step() (telemetry.Reading, error) {
	switch s.State() {
	case StateCalibrated, StateRunning:
	default:
		return telemetry.Reading{}, ErrNotReady
	}

	now := s.now()
	p, err := s.baro.ReadPressure()
	if err != nil {
		return telemetry.Reading{}, s.readFailed("barometer", "pressure", err)
	}
	raw, err := s.baro.ReadAltitude(s.cal.SeaLevelPressurePa)
	if err != nil {
		return telemetry.Reading{}, s.readFailed("barometer", "altitude", err)
	}
	tc, err := s.baro.ReadTemperature()
	if err != nil {
		return telemetry.Reading{}, s.readFailed("barometer", "temperature", err)
	}
	var ev *sensors.Event
	if s.imu != nil {
		e, err := s.imu.ReadEvent()
		if err != nil {
			return telemetry.Reading{}, s.readFailed("imu", "event", err)
		}
		ev = &e
	}

	filtered, err := s.filter.Update(raw)
	if err != nil {
		// Unreachable after Setup.
		return telemetry.Reading{}, err
	}

	s.seq++
	r := telemetry.Reading{
		Seq:               s.seq,
		Time:              now,
		PressurePa:        p,
		RawAltitudeM:      raw,
		FilteredAltitudeM: filtered,
		BaroTempC:         tc,
		IMU:               ev,
	}

	vs := s.verticalSpeed(now, filtered)

	var sinkErrs uint64
	for _, sink := range s.sinks {
		if err := sink.Emit(r); err != nil {
			sinkErrs++
			s.log.Warn("sink failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.snap.Last = &r
	s.snap.Cycles++
	s.snap.SinkErrors += sinkErrs
	s.snap.VerticalSpeedMS = vs
	if filtered > s.snap.MaxAltitudeM {
		s.snap.MaxAltitudeM = filtered
	}
	s.snap.LastError = ""
	s.snap.UpdatedAt = now
	s.mu.Unlock()

	s.metric.observe(r, vs)
	return r, nil
}

// verticalSpeed low-passes the derivative of the filtered altitude.
func (s *Service) verticalSpeed(now time.Time, alt float64) float64 {
	s.mu.RLock()
	vs := s.snap.VerticalSpeedMS
	s.mu.RUnlock()

	if !s.lastAt.IsZero() {
		if dt := now.Sub(s.lastAt).Seconds(); dt > 0 {
			vs = filter.Blend(0.8, vs, (alt-s.lastFA)/dt)
		}
	}
	s.lastAt = now
	s.lastFA = alt
	if math.IsNaN(vs) || math.IsInf(vs, 0) {
		vs = 0
	}
	return vs
}

func (s *Service) readFailed(sensor, what string, err error) error {
	err = fmt.Errorf("altimeter: read %s %s: %w", sensor, what, err)
	s.log.Warn("read failed, skipping cycle", zap.String("sensor", sensor), zap.Error(err))
	s.mu.Lock()
	s.snap.ReadErrors++
	s.snap.LastError = err.Error()
	s.snap.UpdatedAt = s.now()
	s.mu.Unlock()
	s.metric.readError(sensor)
	return err
}

// Run steps immediately and then once per interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	st := s.State()
	if st != StateCalibrated && st != StateRunning {
		return ErrNotReady
	}
	s.mu.Lock()
	s.snap.State = StateRunning
	s.mu.Unlock()
	s.metric.setState(StateRunning)
	s.setIndicator(true)
	defer s.setIndicator(false)

	s.log.Info("running", zap.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		_, _ = s.Step()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) setIndicator(on bool) {
	if s.ind == nil {
		return
	}
	if err := s.ind.Set(on); err != nil {
		s.log.Warn("indicator failed", zap.Bool("on", on), zap.Error(err))
	}
}
