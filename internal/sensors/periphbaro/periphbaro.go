// Package periphbaro exposes any Bosch BMP180/BMP280/BME280 that periph.io's
// bmxx80 driver understands as a sensors.Barometer.
package periphbaro

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/sensors"
)

type senser interface {
	Sense(e *physic.Env) error
	Halt() error
}

// openDev is replaced in tests.
var openDev = func(busName string, addr uint16) (senser, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("i2c open %q: %w", busName, err)
	}
	opts := bmxx80.DefaultOpts
	dev, err := bmxx80.NewI2C(bus, addr, &opts)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return dev, bus, nil
}

// Device is a lazily opened bmxx80. BusName "" picks the first I²C bus.
type Device struct {
	BusName string
	Addr    uint16

	mu  sync.Mutex
	dev senser
	bus io.Closer
}

func New(busName string, addr uint16) *Device {
	return &Device{BusName: busName, Addr: addr}
}

// Begin opens the bus and lets bmxx80 probe the chip id. Any failure here
// means the sensor is not usable and is reported as not found.
func (d *Device) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return nil
	}
	dev, bus, err := openDev(d.BusName, d.Addr)
	if err != nil {
		return sensors.NotFound("bmxx80", err)
	}
	d.dev, d.bus = dev, bus
	return nil
}

func (d *Device) sense() (physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var e physic.Env
	if d.dev == nil {
		return e, fmt.Errorf("bmxx80: not begun")
	}
	if err := d.dev.Sense(&e); err != nil {
		return e, fmt.Errorf("bmxx80: sense: %w", err)
	}
	return e, nil
}

func (d *Device) ReadPressure() (float64, error) {
	e, err := d.sense()
	if err != nil {
		return 0, err
	}
	return float64(e.Pressure) / float64(physic.Pascal), nil
}

func (d *Device) ReadTemperature() (float64, error) {
	e, err := d.sense()
	if err != nil {
		return 0, err
	}
	return e.Temperature.Celsius(), nil
}

func (d *Device) ReadAltitude(seaLevelPa float64) (float64, error) {
	p, err := d.ReadPressure()
	if err != nil {
		return 0, err
	}
	return baro.Altitude(p, seaLevelPa), nil
}

// Close halts the sensor and releases the bus.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Halt()
	if cerr := d.bus.Close(); err == nil {
		err = cerr
	}
	d.dev, d.bus = nil, nil
	return err
}
