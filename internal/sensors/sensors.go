// Package sensors defines the capabilities the altimeter needs from its
// pressure sensor and its inertial sensor. Hardware drivers live in the
// sub-packages; sim provides a deterministic stand-in.
package sensors

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceNotFound reports that a sensor did not answer its identity probe.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceError names the sensor that failed to begin.
type DeviceError struct {
	Sensor string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return e.Sensor + ": " + ErrDeviceNotFound.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Sensor, ErrDeviceNotFound, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDeviceNotFound}
	}
	return []error{ErrDeviceNotFound, e.Err}
}

// NotFound wraps err as a device-not-found error for sensor.
func NotFound(sensor string, err error) error {
	return &DeviceError{Sensor: sensor, Err: err}
}

// Barometer is a pressure/temperature sensor such as the BMP085/BMP180.
type Barometer interface {
	// Begin probes the device and loads its calibration. A missing or
	// unidentified device yields an error wrapping ErrDeviceNotFound.
	Begin() error
	// ReadPressure returns the compensated pressure in Pa.
	ReadPressure() (float64, error)
	// ReadAltitude samples pressure and converts it to meters relative to
	// seaLevelPa.
	ReadAltitude(seaLevelPa float64) (float64, error)
	// ReadTemperature returns the die temperature in °C.
	ReadTemperature() (float64, error)
}

// AccelRange is the accelerometer full-scale range in g.
type AccelRange int

const (
	AccelRange2G  AccelRange = 2
	AccelRange4G  AccelRange = 4
	AccelRange8G  AccelRange = 8
	AccelRange16G AccelRange = 16
)

func (r AccelRange) Valid() bool {
	switch r {
	case AccelRange2G, AccelRange4G, AccelRange8G, AccelRange16G:
		return true
	}
	return false
}

// GyroRange is the gyroscope full-scale range in deg/s.
type GyroRange int

const (
	GyroRange250  GyroRange = 250
	GyroRange500  GyroRange = 500
	GyroRange1000 GyroRange = 1000
	GyroRange2000 GyroRange = 2000
)

func (r GyroRange) Valid() bool {
	switch r {
	case GyroRange250, GyroRange500, GyroRange1000, GyroRange2000:
		return true
	}
	return false
}

// Bandwidth is the digital low-pass filter bandwidth in Hz.
type Bandwidth int

const (
	Bandwidth260 Bandwidth = 260
	Bandwidth184 Bandwidth = 184
	Bandwidth94  Bandwidth = 94
	Bandwidth44  Bandwidth = 44
	Bandwidth21  Bandwidth = 21
	Bandwidth10  Bandwidth = 10
	Bandwidth5   Bandwidth = 5
)

func (b Bandwidth) Valid() bool {
	switch b {
	case Bandwidth260, Bandwidth184, Bandwidth94, Bandwidth44, Bandwidth21, Bandwidth10, Bandwidth5:
		return true
	}
	return false
}

// Vector is a three-axis measurement.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Event is one inertial sample in SI units.
type Event struct {
	Time         time.Time `json:"time"`
	Acceleration Vector    `json:"acceleration_ms2"` // m/s²
	Gyro         Vector    `json:"gyro_rads"`        // rad/s
	TemperatureC float64   `json:"temp_c"`
}

// IMU is an accelerometer/gyroscope such as the MPU6050.
type IMU interface {
	Begin() error
	SetAccelRange(r AccelRange) error
	SetGyroRange(r GyroRange) error
	SetFilterBandwidth(b Bandwidth) error
	ReadEvent() (Event, error)
}

// StandardGravity is g in m/s².
const StandardGravity = 9.80665
