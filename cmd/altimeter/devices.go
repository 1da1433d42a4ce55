package main

import (
	"fmt"

	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/i2c"
	"cansat-altimeter/internal/sensors"
	"cansat-altimeter/internal/sensors/bmp085"
	"cansat-altimeter/internal/sensors/bmp280"
	"cansat-altimeter/internal/sensors/icm20948"
	"cansat-altimeter/internal/sensors/mpu6050"
	"cansat-altimeter/internal/sensors/periphbaro"
	"cansat-altimeter/internal/sim"
)

// devices holds the opened sensors and whatever has to be closed after.
type devices struct {
	baro    sensors.Barometer
	imu     sensors.IMU
	rig     *sim.Rig
	closers []func() error
}

func (d *devices) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
	d.closers = nil
}

// openDevices builds the barometer and, when enabled, the IMU. A bus that
// cannot be opened is not an error here: the drivers then report the device
// as not found from Begin, which the service treats as terminal.
func openDevices(cfg config.Config) (*devices, error) {
	d := &devices{}

	needSim := cfg.Baro.Backend == "sim" || (cfg.IMU.Enable && cfg.IMU.Backend == "sim")
	if needSim {
		rig, err := newRig(cfg.Sim)
		if err != nil {
			return nil, err
		}
		d.rig = rig
	}

	needBus := cfg.Baro.Backend == "bmp085" || cfg.Baro.Backend == "bmp280" ||
		(cfg.IMU.Enable && (cfg.IMU.Backend == "mpu6050" || cfg.IMU.Backend == "icm20948"))
	var bus *i2c.Bus
	if needBus {
		if b, err := i2c.OpenBus(cfg.I2C.Bus); err == nil {
			bus = b
			d.closers = append(d.closers, b.Close)
		}
	}

	switch cfg.Baro.Backend {
	case "bmp085":
		d.baro = bmp085.New(bus.Dev(cfg.Baro.Addr), bmp085.Oversampling(cfg.Baro.Oversampling))
	case "bmp280":
		d.baro = bmp280.New(bus.Dev(cfg.Baro.Addr), bmp280.Oversampling(cfg.Baro.Oversampling))
	case "periph":
		pb := periphbaro.New(cfg.Baro.PeriphBus, cfg.Baro.Addr)
		d.closers = append(d.closers, pb.Close)
		d.baro = pb
	case "sim":
		d.baro = d.rig.Barometer()
	default:
		d.close()
		return nil, fmt.Errorf("unknown baro backend %q", cfg.Baro.Backend)
	}

	if !cfg.IMU.Enable {
		return d, nil
	}
	switch cfg.IMU.Backend {
	case "mpu6050":
		d.imu = mpu6050.New(bus.Dev(cfg.IMU.Addr))
	case "icm20948":
		d.imu = icm20948.New(bus.Dev(cfg.IMU.Addr))
	case "sim":
		d.imu = d.rig.IMU()
	default:
		d.close()
		return nil, fmt.Errorf("unknown imu backend %q", cfg.IMU.Backend)
	}
	return d, nil
}

func newRig(sc config.SimConfig) (*sim.Rig, error) {
	script := sim.DefaultScript()
	if sc.Script != "" {
		s, err := sim.LoadScript(sc.Script)
		if err != nil {
			return nil, fmt.Errorf("sim script: %w", err)
		}
		script = s
	}
	flight, err := sim.NewFlight(script)
	if err != nil {
		return nil, fmt.Errorf("sim script: %w", err)
	}
	return sim.NewRig(flight, sim.Options{
		Seed:            sc.Seed,
		PressureNoisePa: sc.PressureNoisePa,
		AccelNoiseMS2:   sc.AccelNoiseMS2,
		GyroNoiseRadS:   sc.GyroNoiseRadS,
		Loop:            sc.Loop,
		BaroAbsent:      sc.BaroAbsent,
		IMUAbsent:       sc.IMUAbsent,
	}), nil
}
