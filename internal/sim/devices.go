package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/sensors"
)

var errAbsent = errors.New("simulated device absent")

// Options tunes the simulated devices.
type Options struct {
	Seed int64

	PressureNoisePa float64
	AccelNoiseMS2   float64
	GyroNoiseRadS   float64

	// Loop replays the flight forever instead of holding the last keyframe.
	Loop bool

	// BaroAbsent and IMUAbsent make Begin fail as if nothing answered.
	BaroAbsent bool
	IMUAbsent  bool

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Rig owns the shared flight clock and noise source of a simulated
// barometer/IMU pair.
type Rig struct {
	flight *Flight
	opts   Options
	start  time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRig(f *Flight, opts Options) *Rig {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Rig{
		flight: f,
		opts:   opts,
		start:  opts.Clock(),
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}
}

// Elapsed returns flight time since the rig was created.
func (r *Rig) Elapsed() time.Duration {
	return r.opts.Clock().Sub(r.start)
}

// State returns the noiseless flight state now.
func (r *Rig) State() State {
	return r.flight.StateAt(r.Elapsed(), r.opts.Loop)
}

func (r *Rig) noise(sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.NormFloat64() * sigma
}

// Barometer returns the simulated pressure sensor of the rig.
func (r *Rig) Barometer() *Barometer {
	return &Barometer{rig: r}
}

// IMU returns the simulated inertial sensor of the rig.
func (r *Rig) IMU() *IMU {
	return &IMU{rig: r}
}

// faults is a FIFO of errors returned by the next reads.
type faults struct {
	mu      sync.Mutex
	pending []error
	reads   int
}

// FailNext makes the next read return err. Calls queue up.
func (f *faults) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, err)
}

// Reads counts read attempts, including failed ones.
func (f *faults) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *faults) take() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.pending) == 0 {
		return nil
	}
	err := f.pending[0]
	f.pending = f.pending[1:]
	return err
}

// Barometer is a simulated sensors.Barometer using the standard atmosphere
// relation between altitude and pressure.
type Barometer struct {
	faults
	rig   *Rig
	begun bool
}

func (b *Barometer) Begin() error {
	if b.rig.opts.BaroAbsent {
		return sensors.NotFound("sim-baro", errAbsent)
	}
	b.begun = true
	return nil
}

func (b *Barometer) ReadPressure() (float64, error) {
	if err := b.read(); err != nil {
		return 0, err
	}
	st := b.rig.State()
	p0 := b.rig.flight.SeaLevelPa()
	p := p0 * math.Pow(1-st.AltitudeM/44330, 5.255)
	return p + b.rig.noise(b.rig.opts.PressureNoisePa), nil
}

func (b *Barometer) ReadAltitude(seaLevelPa float64) (float64, error) {
	p, err := b.ReadPressure()
	if err != nil {
		return 0, err
	}
	return baro.Altitude(p, seaLevelPa), nil
}

func (b *Barometer) ReadTemperature() (float64, error) {
	if err := b.read(); err != nil {
		return 0, err
	}
	return b.rig.State().TemperatureC, nil
}

func (b *Barometer) read() error {
	if !b.begun {
		return fmt.Errorf("sim-baro: not begun")
	}
	return b.faults.take()
}

// IMU is a simulated sensors.IMU. Z points up; the body spins about Z at the
// flight's spin rate. Outputs clip at the configured full scale.
type IMU struct {
	faults
	rig   *Rig
	begun bool

	accelRange sensors.AccelRange
	gyroRange  sensors.GyroRange
	bandwidth  sensors.Bandwidth
}

func (m *IMU) Begin() error {
	if m.rig.opts.IMUAbsent {
		return sensors.NotFound("sim-imu", errAbsent)
	}
	m.begun = true
	m.accelRange = sensors.AccelRange2G
	m.gyroRange = sensors.GyroRange250
	m.bandwidth = sensors.Bandwidth260
	return nil
}

func (m *IMU) SetAccelRange(r sensors.AccelRange) error {
	if !r.Valid() {
		return fmt.Errorf("sim-imu: unsupported accel range %dg", r)
	}
	m.accelRange = r
	return nil
}

func (m *IMU) SetGyroRange(r sensors.GyroRange) error {
	if !r.Valid() {
		return fmt.Errorf("sim-imu: unsupported gyro range %d dps", r)
	}
	m.gyroRange = r
	return nil
}

func (m *IMU) SetFilterBandwidth(b sensors.Bandwidth) error {
	if !b.Valid() {
		return fmt.Errorf("sim-imu: unsupported bandwidth %d Hz", b)
	}
	m.bandwidth = b
	return nil
}

func (m *IMU) AccelRange() sensors.AccelRange { return m.accelRange }
func (m *IMU) GyroRange() sensors.GyroRange   { return m.gyroRange }
func (m *IMU) Bandwidth() sensors.Bandwidth   { return m.bandwidth }

// vertical acceleration is the change in climb rate over this window.
const accelWindow = 100 * time.Millisecond

func (m *IMU) ReadEvent() (sensors.Event, error) {
	if !m.begun {
		return sensors.Event{}, fmt.Errorf("sim-imu: not begun")
	}
	if err := m.faults.take(); err != nil {
		return sensors.Event{}, err
	}

	r := m.rig
	now := r.opts.Clock()
	elapsed := now.Sub(r.start)
	st := r.flight.StateAt(elapsed, r.opts.Loop)
	prev := r.flight.StateAt(elapsed-accelWindow, r.opts.Loop)
	az := sensors.StandardGravity + (st.ClimbMS-prev.ClimbMS)/accelWindow.Seconds()

	aMax := float64(m.accelRange) * sensors.StandardGravity
	gMax := float64(m.gyroRange) * math.Pi / 180
	an, gn := r.opts.AccelNoiseMS2, r.opts.GyroNoiseRadS

	return sensors.Event{
		Time: now,
		Acceleration: sensors.Vector{
			X: clip(r.noise(an), aMax),
			Y: clip(r.noise(an), aMax),
			Z: clip(az+r.noise(an), aMax),
		},
		Gyro: sensors.Vector{
			X: clip(r.noise(gn), gMax),
			Y: clip(r.noise(gn), gMax),
			Z: clip(st.SpinDPS*math.Pi/180+r.noise(gn), gMax),
		},
		// The die runs a few degrees above ambient.
		TemperatureC: st.TemperatureC + 4,
	}, nil
}

func clip(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
