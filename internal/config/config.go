package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cansat-altimeter/internal/sensors"
)

// Config is shared by cmd/altimeter and cmd/monitor. Each command only looks
// at the sections it needs.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Altimeter AltimeterConfig `yaml:"altimeter"`
	I2C       I2CConfig       `yaml:"i2c"`
	Baro      BaroConfig      `yaml:"baro"`
	IMU       IMUConfig       `yaml:"imu"`
	Sim       SimConfig       `yaml:"sim"`
	Console   ConsoleConfig   `yaml:"console"`
	Record    RecordConfig    `yaml:"record"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	UDP       UDPConfig       `yaml:"udp"`
	Web       WebConfig       `yaml:"web"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

type AltimeterConfig struct {
	Interval           time.Duration `yaml:"interval"`
	ReferenceAltitudeM float64       `yaml:"reference_altitude_m"`
	SmoothingFactor    float64       `yaml:"smoothing_factor"`
}

type I2CConfig struct {
	Bus int `yaml:"bus"`
}

type BaroConfig struct {
	// Backend is one of bmp085, bmp280, periph, sim.
	Backend      string `yaml:"backend"`
	Addr         uint16 `yaml:"addr"`
	Oversampling int    `yaml:"oversampling"`
	// PeriphBus is the periph.io bus name ("" = first bus).
	PeriphBus string `yaml:"periph_bus"`
}

type IMUConfig struct {
	Enable bool `yaml:"enable"`
	// Backend is one of mpu6050, icm20948, sim.
	Backend      string `yaml:"backend"`
	Addr         uint16 `yaml:"addr"`
	AccelRangeG  int    `yaml:"accel_range_g"`
	GyroRangeDPS int    `yaml:"gyro_range_dps"`
	BandwidthHz  int    `yaml:"bandwidth_hz"`
}

type SimConfig struct {
	// Script is an optional YAML flight script; empty uses the built-in drop.
	Script          string  `yaml:"script"`
	Seed            int64   `yaml:"seed"`
	PressureNoisePa float64 `yaml:"pressure_noise_pa"`
	AccelNoiseMS2   float64 `yaml:"accel_noise_ms2"`
	GyroNoiseRadS   float64 `yaml:"gyro_noise_rads"`
	Loop            bool    `yaml:"loop"`
	BaroAbsent      bool    `yaml:"baro_absent"`
	IMUAbsent       bool    `yaml:"imu_absent"`
}

type ConsoleConfig struct {
	// Output is "stdout", "none", or a file path.
	Output string `yaml:"output"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type IndicatorConfig struct {
	Enable    bool   `yaml:"enable"`
	Chip      string `yaml:"chip"`
	Line      int    `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

type MonitorConfig struct {
	// Source is one of serial, tcp, replay.
	Source      string        `yaml:"source"`
	Port        string        `yaml:"port"`
	Baud        uint          `yaml:"baud"`
	Addr        string        `yaml:"addr"`
	ReplayPath  string        `yaml:"replay_path"`
	ReplaySpeed float64       `yaml:"replay_speed"`
	MaxPoints   int           `yaml:"max_points"`
	Refresh     time.Duration `yaml:"refresh"`
	Listen      string        `yaml:"listen"`
	DatalogPath string        `yaml:"datalog_path"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse unmarshals YAML and applies DefaultAndValidate.
func Parse(b []byte) (Config, error) {
	cfg := seed()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// seed presets fields whose zero value is a valid choice, so only an
// absent key picks the default.
func seed() Config {
	var cfg Config
	cfg.I2C.Bus = 1
	cfg.Indicator.Line = 17
	return cfg
}

// Default returns the configuration of an empty file.
func Default() Config {
	cfg := seed()
	// An empty config always validates.
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json")
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	if cfg.Altimeter.Interval == 0 {
		cfg.Altimeter.Interval = 500 * time.Millisecond
	}
	if cfg.Altimeter.Interval < 0 {
		return fmt.Errorf("altimeter.interval must be > 0")
	}
	if cfg.Altimeter.SmoothingFactor == 0 {
		cfg.Altimeter.SmoothingFactor = 0.95
	}
	if !(cfg.Altimeter.SmoothingFactor > 0 && cfg.Altimeter.SmoothingFactor < 1) {
		return fmt.Errorf("altimeter.smoothing_factor must be in (0,1)")
	}
	if h := cfg.Altimeter.ReferenceAltitudeM; h <= -44330 || h >= 44330 {
		return fmt.Errorf("altimeter.reference_altitude_m must be within (-44330,44330)")
	}

	if cfg.I2C.Bus < 0 {
		return fmt.Errorf("i2c.bus must be >= 0")
	}

	cfg.Baro.Backend = strings.ToLower(strings.TrimSpace(cfg.Baro.Backend))
	if cfg.Baro.Backend == "" {
		cfg.Baro.Backend = "bmp085"
	}
	switch cfg.Baro.Backend {
	case "bmp085", "bmp280", "periph", "sim":
	default:
		return fmt.Errorf("baro.backend must be one of bmp085, bmp280, periph, sim")
	}
	if cfg.Baro.Addr == 0 {
		cfg.Baro.Addr = 0x77
	}
	if cfg.Baro.Addr > 0x7F {
		return fmt.Errorf("baro.addr must be a 7-bit address")
	}
	if cfg.Baro.Oversampling < 0 || cfg.Baro.Oversampling > 3 {
		return fmt.Errorf("baro.oversampling must be in [0,3]")
	}

	cfg.IMU.Backend = strings.ToLower(strings.TrimSpace(cfg.IMU.Backend))
	if cfg.IMU.Backend == "" {
		cfg.IMU.Backend = "mpu6050"
	}
	switch cfg.IMU.Backend {
	case "mpu6050", "icm20948", "sim":
	default:
		return fmt.Errorf("imu.backend must be one of mpu6050, icm20948, sim")
	}
	if cfg.IMU.Addr == 0 {
		cfg.IMU.Addr = 0x68
	}
	if cfg.IMU.Addr > 0x7F {
		return fmt.Errorf("imu.addr must be a 7-bit address")
	}
	if cfg.IMU.AccelRangeG == 0 {
		cfg.IMU.AccelRangeG = 8
	}
	if !sensors.AccelRange(cfg.IMU.AccelRangeG).Valid() {
		return fmt.Errorf("imu.accel_range_g must be one of 2, 4, 8, 16")
	}
	if cfg.IMU.GyroRangeDPS == 0 {
		cfg.IMU.GyroRangeDPS = 500
	}
	if !sensors.GyroRange(cfg.IMU.GyroRangeDPS).Valid() {
		return fmt.Errorf("imu.gyro_range_dps must be one of 250, 500, 1000, 2000")
	}
	if cfg.IMU.BandwidthHz == 0 {
		cfg.IMU.BandwidthHz = 21
	}
	if !sensors.Bandwidth(cfg.IMU.BandwidthHz).Valid() {
		return fmt.Errorf("imu.bandwidth_hz must be one of 260, 184, 94, 44, 21, 10, 5")
	}

	if cfg.Sim.PressureNoisePa < 0 || cfg.Sim.AccelNoiseMS2 < 0 || cfg.Sim.GyroNoiseRadS < 0 {
		return fmt.Errorf("sim noise levels must be >= 0")
	}

	cfg.Console.Output = strings.TrimSpace(cfg.Console.Output)
	if cfg.Console.Output == "" {
		cfg.Console.Output = "stdout"
	}

	if cfg.Record.Enable && strings.TrimSpace(cfg.Record.Path) == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}

	if cfg.MQTT.Enable {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "cansat-altimeter"
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "cansat/telemetry"
	}
	if cfg.MQTT.Timeout <= 0 {
		cfg.MQTT.Timeout = 5 * time.Second
	}

	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Indicator.Chip == "" {
		cfg.Indicator.Chip = "gpiochip0"
	}
	if cfg.Indicator.Line < 0 {
		return fmt.Errorf("indicator.line must be >= 0")
	}

	return defaultAndValidateMonitor(&cfg.Monitor)
}

func defaultAndValidateMonitor(m *MonitorConfig) error {
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
	if m.Source == "" {
		m.Source = "serial"
	}
	switch m.Source {
	case "serial":
		if m.Port == "" {
			m.Port = "/dev/ttyACM3"
		}
	case "tcp":
		if strings.TrimSpace(m.Addr) == "" {
			return fmt.Errorf("monitor.addr is required when monitor.source is tcp")
		}
	case "replay":
		if strings.TrimSpace(m.ReplayPath) == "" {
			return fmt.Errorf("monitor.replay_path is required when monitor.source is replay")
		}
	default:
		return fmt.Errorf("monitor.source must be one of serial, tcp, replay")
	}
	if m.Baud == 0 {
		m.Baud = 9600
	}
	if m.ReplaySpeed == 0 {
		m.ReplaySpeed = 1
	}
	if m.ReplaySpeed < 0 {
		return fmt.Errorf("monitor.replay_speed must be > 0")
	}
	if m.MaxPoints == 0 {
		m.MaxPoints = 100
	}
	if m.MaxPoints < 0 {
		return fmt.Errorf("monitor.max_points must be > 0")
	}
	if m.Refresh <= 0 {
		m.Refresh = 500 * time.Millisecond
	}
	if m.Listen == "" {
		m.Listen = ":8081"
	}
	return nil
}
