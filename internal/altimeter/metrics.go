package altimeter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/telemetry"
)

// Metrics exports the loop state as Prometheus gauges and counters. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	pressure      prometheus.Gauge
	rawAltitude   prometheus.Gauge
	filtAltitude  prometheus.Gauge
	baroTemp      prometheus.Gauge
	imuTemp       prometheus.Gauge
	verticalSpeed prometheus.Gauge
	seaLevel      prometheus.Gauge
	state         prometheus.Gauge
	cycles        prometheus.Counter
	readErrors    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_pressure_pascals",
			Help: "Last barometric pressure sample.",
		}),
		rawAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_raw_altitude_meters",
			Help: "Unfiltered altitude of the last sample.",
		}),
		filtAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_filtered_altitude_meters",
			Help: "Exponentially smoothed altitude.",
		}),
		baroTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_baro_temperature_celsius",
			Help: "Barometer die temperature.",
		}),
		imuTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_imu_temperature_celsius",
			Help: "IMU die temperature.",
		}),
		verticalSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_vertical_speed_meters_per_second",
			Help: "Climb rate of the filtered altitude.",
		}),
		seaLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_sea_level_pressure_pascals",
			Help: "Calibrated sea-level pressure.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "altimeter_state",
			Help: "0 uninitialized, 1 calibrated, 2 running, 3 halted.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "altimeter_cycles_total",
			Help: "Completed sample cycles.",
		}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "altimeter_read_errors_total",
			Help: "Skipped cycles by failing sensor.",
		}, []string{"sensor"}),
	}
	m.reg.MustRegister(
		m.pressure, m.rawAltitude, m.filtAltitude, m.baroTemp, m.imuTemp,
		m.verticalSpeed, m.seaLevel, m.state, m.cycles, m.readErrors,
	)
	return m
}

// Registry exposes the private registry so other packages can add collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(r telemetry.Reading, vs float64) {
	if m == nil {
		return
	}
	m.pressure.Set(r.PressurePa)
	m.rawAltitude.Set(r.RawAltitudeM)
	m.filtAltitude.Set(r.FilteredAltitudeM)
	m.baroTemp.Set(r.BaroTempC)
	if r.IMU != nil {
		m.imuTemp.Set(r.IMU.TemperatureC)
	}
	m.verticalSpeed.Set(vs)
	m.cycles.Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) setCalibration(c baro.Calibration) {
	if m == nil {
		return
	}
	m.seaLevel.Set(c.SeaLevelPressurePa)
}

func (m *Metrics) readError(sensor string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(sensor).Inc()
}
