// Package bmp085 drives the Bosch BMP085 and its drop-in successor the BMP180.
package bmp085

import (
	"encoding/binary"
	"fmt"
	"time"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/i2c"
	"cansat-altimeter/internal/sensors"
)

var sleep = time.Sleep

const (
	addrDefault = 0x77

	regID  = 0xD0
	chipID = 0x55

	regCalib = 0xAA
	calibLen = 22

	regControl = 0xF4
	regData    = 0xF6

	cmdTemp     = 0x2E
	cmdPressure = 0x34
)

// Oversampling selects the pressure conversion mode (0 ultra low power .. 3
// ultra high resolution).
type Oversampling byte

const (
	UltraLowPower Oversampling = iota
	Standard
	HighRes
	UltraHighRes
)

// conversion times from the datasheet, rounded up.
var pressureDelay = [...]time.Duration{
	5 * time.Millisecond,
	8 * time.Millisecond,
	14 * time.Millisecond,
	26 * time.Millisecond,
}

type calibration struct {
	ac1, ac2, ac3 int16
	ac4, ac5, ac6 uint16
	b1, b2        int16
	mb, mc, md    int16
}

type Device struct {
	dev   i2c.RegIO
	oss   Oversampling
	cal   calibration
	begun bool
}

func DefaultAddress() uint16 { return addrDefault }

// New returns an unprobed device; call Begin before reading.
func New(dev *i2c.Dev, oss Oversampling) *Device {
	if dev == nil {
		return newWithIO(nil, oss)
	}
	return newWithIO(dev, oss)
}

func newWithIO(dev i2c.RegIO, oss Oversampling) *Device {
	if oss > UltraHighRes {
		oss = UltraHighRes
	}
	return &Device{dev: dev, oss: oss}
}

func (d *Device) Begin() error {
	if d == nil || d.dev == nil {
		return sensors.NotFound("bmp085", fmt.Errorf("dev is nil"))
	}
	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return sensors.NotFound("bmp085", fmt.Errorf("id read failed: %w", err))
	}
	if id != chipID {
		return sensors.NotFound("bmp085", fmt.Errorf("chip id=0x%02X want 0x%02X", id, chipID))
	}

	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib, buf); err != nil {
		return fmt.Errorf("bmp085: read calib failed: %w", err)
	}
	// Big endian, AC1..MD.
	d.cal = calibration{
		ac1: int16(binary.BigEndian.Uint16(buf[0:2])),
		ac2: int16(binary.BigEndian.Uint16(buf[2:4])),
		ac3: int16(binary.BigEndian.Uint16(buf[4:6])),
		ac4: binary.BigEndian.Uint16(buf[6:8]),
		ac5: binary.BigEndian.Uint16(buf[8:10]),
		ac6: binary.BigEndian.Uint16(buf[10:12]),
		b1:  int16(binary.BigEndian.Uint16(buf[12:14])),
		b2:  int16(binary.BigEndian.Uint16(buf[14:16])),
		mb:  int16(binary.BigEndian.Uint16(buf[16:18])),
		mc:  int16(binary.BigEndian.Uint16(buf[18:20])),
		md:  int16(binary.BigEndian.Uint16(buf[20:22])),
	}
	// An erased or absent EEPROM reads back as 0x0000 or 0xFFFF.
	if d.cal.ac4 == 0 || d.cal.ac4 == 0xFFFF || d.cal.ac5 == 0 || d.cal.ac5 == 0xFFFF {
		return fmt.Errorf("bmp085: calibration invalid (ac4=%d ac5=%d)", d.cal.ac4, d.cal.ac5)
	}
	d.begun = true
	return nil
}

func (d *Device) readRawTemp() (int32, error) {
	if err := d.dev.WriteReg(regControl, cmdTemp); err != nil {
		return 0, fmt.Errorf("bmp085: start temp failed: %w", err)
	}
	sleep(5 * time.Millisecond)
	var buf [2]byte
	if err := d.dev.ReadReg(regData, buf[:]); err != nil {
		return 0, fmt.Errorf("bmp085: read temp failed: %w", err)
	}
	return int32(binary.BigEndian.Uint16(buf[:])), nil
}

func (d *Device) readRawPressure() (int32, error) {
	if err := d.dev.WriteReg(regControl, cmdPressure+byte(d.oss)<<6); err != nil {
		return 0, fmt.Errorf("bmp085: start pressure failed: %w", err)
	}
	sleep(pressureDelay[d.oss])
	var buf [3]byte
	if err := d.dev.ReadReg(regData, buf[:]); err != nil {
		return 0, fmt.Errorf("bmp085: read pressure failed: %w", err)
	}
	up := (int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])) >> (8 - uint(d.oss))
	return up, nil
}

func (d *Device) computeB5(ut int32) int32 {
	x1 := ((ut - int32(d.cal.ac6)) * int32(d.cal.ac5)) >> 15
	x2 := (int32(d.cal.mc) << 11) / (x1 + int32(d.cal.md))
	return x1 + x2
}

// ReadTemperature returns the compensated temperature in °C.
func (d *Device) ReadTemperature() (float64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	ut, err := d.readRawTemp()
	if err != nil {
		return 0, err
	}
	b5 := d.computeB5(ut)
	return float64((b5+8)>>4) / 10.0, nil
}

// ReadPressure returns the compensated pressure in Pa.
func (d *Device) ReadPressure() (float64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	ut, err := d.readRawTemp()
	if err != nil {
		return 0, err
	}
	up, err := d.readRawPressure()
	if err != nil {
		return 0, err
	}
	return float64(d.compensatePressure(d.computeB5(ut), up)), nil
}

// ReadAltitude samples pressure and converts it against seaLevelPa.
func (d *Device) ReadAltitude(seaLevelPa float64) (float64, error) {
	p, err := d.ReadPressure()
	if err != nil {
		return 0, err
	}
	return baro.Altitude(p, seaLevelPa), nil
}

// compensatePressure is the integer algorithm from the datasheet.
func (d *Device) compensatePressure(b5, up int32) int32 {
	c := d.cal
	oss := uint(d.oss)

	b6 := b5 - 4000
	x1 := (int32(c.b2) * ((b6 * b6) >> 12)) >> 11
	x2 := (int32(c.ac2) * b6) >> 11
	x3 := x1 + x2
	b3 := (((int32(c.ac1)*4 + x3) << oss) + 2) / 4

	x1 = (int32(c.ac3) * b6) >> 13
	x2 = (int32(c.b1) * ((b6 * b6) >> 12)) >> 16
	x3 = ((x1 + x2) + 2) >> 2
	b4 := (uint32(c.ac4) * uint32(x3+32768)) >> 15
	b7 := uint32(up-b3) * uint32(50000>>oss)

	var p int32
	if b7 < 0x80000000 {
		p = int32((b7 * 2) / b4)
	} else {
		p = int32((b7 / b4) * 2)
	}

	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	return p + ((x1 + x2 + 3791) >> 4)
}

func (d *Device) ready() error {
	if d == nil || !d.begun {
		return fmt.Errorf("bmp085: not begun")
	}
	return nil
}
