package mpu6050

import (
	"fmt"
	"math"
	"time"

	"cansat-altimeter/internal/i2c"
	"cansat-altimeter/internal/sensors"
)

var (
	sleep = time.Sleep
	now   = time.Now
)

// Minimal InvenSense MPU-6050 driver.
//
// Probe, reset/wake, full-scale and DLPF configuration, and one burst read
// of the accel/temp/gyro block converted to SI units.

const (
	addrDefault = 0x68

	regWhoAmI = 0x75
	whoAmIVal = 0x68

	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regIntEnable   = 0x38
	regAccelXoutH  = 0x3B // accel(6) temp(2) gyro(6)
	regPwrMgmt1    = 0x6B

	bitReset  = 0x80
	clkPLLGyX = 0x01

	burstLen = 14
)

var accelLSB = map[sensors.AccelRange]struct {
	fs  byte
	lsb float64
}{
	sensors.AccelRange2G:  {0, 16384},
	sensors.AccelRange4G:  {1, 8192},
	sensors.AccelRange8G:  {2, 4096},
	sensors.AccelRange16G: {3, 2048},
}

var gyroLSB = map[sensors.GyroRange]struct {
	fs  byte
	lsb float64
}{
	sensors.GyroRange250:  {0, 131},
	sensors.GyroRange500:  {1, 65.5},
	sensors.GyroRange1000: {2, 32.8},
	sensors.GyroRange2000: {3, 16.4},
}

// DLPF_CFG values for the accelerometer bandwidth.
var dlpfCfg = map[sensors.Bandwidth]byte{
	sensors.Bandwidth260: 0,
	sensors.Bandwidth184: 1,
	sensors.Bandwidth94:  2,
	sensors.Bandwidth44:  3,
	sensors.Bandwidth21:  4,
	sensors.Bandwidth10:  5,
	sensors.Bandwidth5:   6,
}

type Device struct {
	dev   i2c.RegIO
	begun bool

	accelRange sensors.AccelRange
	gyroRange  sensors.GyroRange
	bandwidth  sensors.Bandwidth

	// m/s² and rad/s per LSB for the configured full scale.
	scaleAccel float64
	scaleGyro  float64
}

func DefaultAddress() uint16 { return addrDefault }

// New returns an unprobed device; call Begin before configuring or reading.
func New(dev *i2c.Dev) *Device {
	if dev == nil {
		return newWithIO(nil)
	}
	return newWithIO(dev)
}

func newWithIO(dev i2c.RegIO) *Device {
	return &Device{dev: dev}
}

func (d *Device) Begin() error {
	if d == nil || d.dev == nil {
		return sensors.NotFound("mpu6050", fmt.Errorf("dev is nil"))
	}
	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return sensors.NotFound("mpu6050", fmt.Errorf("whoami read failed: %w", err))
	}
	if who != whoAmIVal {
		return sensors.NotFound("mpu6050", fmt.Errorf("whoami=0x%02X want 0x%02X", who, whoAmIVal))
	}

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("mpu6050: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with the X gyro PLL as clock source.
	if err := d.dev.WriteReg(regPwrMgmt1, clkPLLGyX); err != nil {
		return fmt.Errorf("mpu6050: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.dev.WriteReg(regIntEnable, 0x00); err != nil {
		return fmt.Errorf("mpu6050: interrupt disable failed: %w", err)
	}
	// 1 kHz / (1+19) = 50 Hz once the DLPF is on.
	if err := d.dev.WriteReg(regSmplrtDiv, 19); err != nil {
		return fmt.Errorf("mpu6050: sample rate failed: %w", err)
	}

	d.begun = true

	// Power-on defaults of the part.
	if err := d.SetAccelRange(sensors.AccelRange2G); err != nil {
		return err
	}
	if err := d.SetGyroRange(sensors.GyroRange250); err != nil {
		return err
	}
	return d.SetFilterBandwidth(sensors.Bandwidth260)
}

func (d *Device) SetAccelRange(r sensors.AccelRange) error {
	if err := d.ready(); err != nil {
		return err
	}
	v, ok := accelLSB[r]
	if !ok {
		return fmt.Errorf("mpu6050: unsupported accel range %dg", r)
	}
	if err := d.dev.WriteReg(regAccelConfig, v.fs<<3); err != nil {
		return fmt.Errorf("mpu6050: accel config failed: %w", err)
	}
	d.accelRange = r
	d.scaleAccel = sensors.StandardGravity / v.lsb
	return nil
}

func (d *Device) SetGyroRange(r sensors.GyroRange) error {
	if err := d.ready(); err != nil {
		return err
	}
	v, ok := gyroLSB[r]
	if !ok {
		return fmt.Errorf("mpu6050: unsupported gyro range %d dps", r)
	}
	if err := d.dev.WriteReg(regGyroConfig, v.fs<<3); err != nil {
		return fmt.Errorf("mpu6050: gyro config failed: %w", err)
	}
	d.gyroRange = r
	d.scaleGyro = (math.Pi / 180) / v.lsb
	return nil
}

func (d *Device) SetFilterBandwidth(b sensors.Bandwidth) error {
	if err := d.ready(); err != nil {
		return err
	}
	cfg, ok := dlpfCfg[b]
	if !ok {
		return fmt.Errorf("mpu6050: unsupported bandwidth %d Hz", b)
	}
	if err := d.dev.WriteReg(regConfig, cfg); err != nil {
		return fmt.Errorf("mpu6050: dlpf config failed: %w", err)
	}
	d.bandwidth = b
	return nil
}

func (d *Device) AccelRange() sensors.AccelRange { return d.accelRange }
func (d *Device) GyroRange() sensors.GyroRange   { return d.gyroRange }
func (d *Device) Bandwidth() sensors.Bandwidth   { return d.bandwidth }

// ReadEvent reads accel, temperature and gyro in a single burst.
func (d *Device) ReadEvent() (sensors.Event, error) {
	if err := d.ready(); err != nil {
		return sensors.Event{}, err
	}
	buf := make([]byte, burstLen)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return sensors.Event{}, fmt.Errorf("mpu6050: read sensors failed: %w", err)
	}

	word := func(i int) float64 { return float64(int16(buf[i])<<8 | int16(buf[i+1])) }

	return sensors.Event{
		Time: now(),
		Acceleration: sensors.Vector{
			X: word(0) * d.scaleAccel,
			Y: word(2) * d.scaleAccel,
			Z: word(4) * d.scaleAccel,
		},
		TemperatureC: word(6)/340.0 + 36.53,
		Gyro: sensors.Vector{
			X: word(8) * d.scaleGyro,
			Y: word(10) * d.scaleGyro,
			Z: word(12) * d.scaleGyro,
		},
	}, nil
}

func (d *Device) ready() error {
	if d == nil || !d.begun {
		return fmt.Errorf("mpu6050: not begun")
	}
	return nil
}
