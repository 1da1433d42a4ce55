package icm20948

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

// Minimal TDK ICM-20948 driver, an alternative IMU backend for boards that
// carry one instead of the MPU-6050.
//
// Accel and gyro live in bank 0 as one contiguous block followed by the
// die temperature; full-scale and DLPF settings live in bank 2.

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	clkAuto       = 0x01
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D // accel(6) gyro(6) temp(2)

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fchoice  = 0x01
	burstLen = 14

	tempSensitivity = 333.87
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

// Nearest DLPFCFG for each bandwidth. 260 Hz bypasses the filter.
var dlpfCfg = map[sensors.Bandwidth]byte{
	sensors.Bandwidth184: 0,
	sensors.Bandwidth94:  2,
	sensors.Bandwidth44:  3,
	sensors.Bandwidth21:  4,
	sensors.Bandwidth10:  5,
	sensors.Bandwidth5:   6,
}

type Device struct {
	dev     i2c.RegIO
	begun   bool
	curBank byte

	accelRange sensors.AccelRange
	gyroRange  sensors.GyroRange
	bandwidth  sensors.Bandwidth

	accelFS, gyroFS byte

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
	return &Device{dev: dev, curBank: 0xFF}
}

func (d *Device) Begin() error {
	if d == nil || d.dev == nil {
		return sensors.NotFound("icm20948", fmt.Errorf("dev is nil"))
	}
	if err := d.setBank(0); err != nil {
		return sensors.NotFound("icm20948", err)
	}
	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return sensors.NotFound("icm20948", fmt.Errorf("whoami read failed: %w", err))
	}
	if who != whoAmIVal {
		return sensors.NotFound("icm20948", fmt.Errorf("whoami=0x%02X want 0x%02X", who, whoAmIVal))
	}

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset puts the part back in bank 0.
	d.curBank = 0

	if err := d.dev.WriteReg(regPwrMgmt1, clkAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// 1125 Hz / (1+21) ≈ 50 Hz.
	_ = d.dev.WriteReg(regGyroSmplrt, 21)
	_ = d.dev.WriteReg(regAccelSmplrt2, 21)
	if err := d.setBank(0); err != nil {
		return err
	}

	d.begun = true
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
		return fmt.Errorf("icm20948: unsupported accel range %dg", r)
	}
	d.accelFS = v.fs
	if err := d.writeConfig(); err != nil {
		return err
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
		return fmt.Errorf("icm20948: unsupported gyro range %d dps", r)
	}
	d.gyroFS = v.fs
	if err := d.writeConfig(); err != nil {
		return err
	}
	d.gyroRange = r
	d.scaleGyro = (math.Pi / 180) / v.lsb
	return nil
}

func (d *Device) SetFilterBandwidth(b sensors.Bandwidth) error {
	if err := d.ready(); err != nil {
		return err
	}
	if _, ok := dlpfCfg[b]; !ok && b != sensors.Bandwidth260 {
		return fmt.Errorf("icm20948: unsupported bandwidth %d Hz", b)
	}
	prev := d.bandwidth
	d.bandwidth = b
	if err := d.writeConfig(); err != nil {
		d.bandwidth = prev
		return err
	}
	return nil
}

func (d *Device) AccelRange() sensors.AccelRange { return d.accelRange }
func (d *Device) GyroRange() sensors.GyroRange   { return d.gyroRange }
func (d *Device) Bandwidth() sensors.Bandwidth   { return d.bandwidth }

// writeConfig pushes full-scale and DLPF settings for both sensors; they
// share a register each.
func (d *Device) writeConfig() error {
	var filt byte
	if cfg, ok := dlpfCfg[d.bandwidth]; ok {
		filt = cfg<<3 | fchoice
	}
	if err := d.setBank(bank2); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regAccelConfig, filt|d.accelFS<<1); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.dev.WriteReg(regGyroConfig, filt|d.gyroFS<<1); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	return d.setBank(0)
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// ReadEvent reads accel, gyro and temperature in a single burst.
func (d *Device) ReadEvent() (sensors.Event, error) {
	if err := d.ready(); err != nil {
		return sensors.Event{}, err
	}
	if err := d.setBank(0); err != nil {
		return sensors.Event{}, err
	}
	buf := make([]byte, burstLen)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return sensors.Event{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}

	word := func(i int) float64 { return float64(int16(buf[i])<<8 | int16(buf[i+1])) }

	return sensors.Event{
		Time: now(),
		Acceleration: sensors.Vector{
			X: word(0) * d.scaleAccel,
			Y: word(2) * d.scaleAccel,
			Z: word(4) * d.scaleAccel,
		},
		Gyro: sensors.Vector{
			X: word(6) * d.scaleGyro,
			Y: word(8) * d.scaleGyro,
			Z: word(10) * d.scaleGyro,
		},
		TemperatureC: word(12)/tempSensitivity + 21,
	}, nil
}

func (d *Device) ready() error {
	if d == nil || !d.begun {
		return fmt.Errorf("icm20948: not begun")
	}
	return nil
}
