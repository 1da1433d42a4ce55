// Package bmp280 drives the Bosch BMP280 as an alternative barometer backend.
// Conversions run in forced mode so each read samples fresh pressure.
package bmp280

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

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7

	modeForced = 0x01
)

// Oversampling mirrors the four BMP085 modes so both backends share the
// baro.oversampling setting.
type Oversampling byte

const (
	UltraLowPower Oversampling = iota
	Standard
	HighRes
	UltraHighRes
)

// osrs field values (pressure, temperature) per mode.
var osrs = [...][2]byte{
	{1, 1}, // x1, x1
	{3, 1}, // x4, x1
	{4, 1}, // x8, x1
	{5, 2}, // x16, x2
}

var osrsTimes = [...]float64{0, 1, 2, 4, 8, 16}

type calibration struct {
	t1                             uint16
	t2, t3                         int16
	p1                             uint16
	p2, p3, p4, p5, p6, p7, p8, p9 int16
}

func parseCalibration(buf []byte) calibration {
	w := func(i int) uint16 { return binary.LittleEndian.Uint16(buf[2*i:]) }
	return calibration{
		t1: w(0), t2: int16(w(1)), t3: int16(w(2)),
		p1: w(3), p2: int16(w(4)), p3: int16(w(5)), p4: int16(w(6)),
		p5: int16(w(7)), p6: int16(w(8)), p7: int16(w(9)), p8: int16(w(10)), p9: int16(w(11)),
	}
}

// valid rejects the all-zero image read back while NVM is still loading.
func (c calibration) valid() bool { return c.t1 != 0 && c.p1 != 0 }

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
		return sensors.NotFound("bmp280", fmt.Errorf("dev is nil"))
	}
	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return sensors.NotFound("bmp280", fmt.Errorf("id read failed: %w", err))
	}
	if id != chipIDBMP280 {
		return sensors.NotFound("bmp280", fmt.Errorf("chip id=0x%02X want 0x%02X", id, chipIDBMP280))
	}

	_ = d.dev.WriteReg(regReset, resetCmd)

	buf := make([]byte, calibLen)
	for attempt := 0; attempt < 3; attempt++ {
		sleep(5 * time.Millisecond)
		if err := d.dev.ReadReg(regCalib00, buf); err != nil {
			return fmt.Errorf("bmp280: read calib failed: %w", err)
		}
		d.cal = parseCalibration(buf)
		if d.cal.valid() {
			break
		}
	}
	if !d.cal.valid() {
		return fmt.Errorf("bmp280: calibration invalid (t1=%d p1=%d)", d.cal.t1, d.cal.p1)
	}

	// IIR filter off: the altimeter smooths in software.
	if err := d.dev.WriteReg(regConfig, 0x00); err != nil {
		return fmt.Errorf("bmp280: config write failed: %w", err)
	}
	d.begun = true
	return nil
}

// measureTime is the datasheet's maximum forced-mode conversion time.
func (d *Device) measureTime() time.Duration {
	o := osrs[d.oss]
	ms := 1.25 + 2.3*osrsTimes[o[1]] + 2.3*osrsTimes[o[0]] + 0.575
	return time.Duration(ms * float64(time.Millisecond))
}

// Read triggers one forced conversion and returns compensated temperature
// (°C) and pressure (Pa).
func (d *Device) Read() (tempC float64, pressPa float64, err error) {
	if d == nil || !d.begun {
		return 0, 0, fmt.Errorf("bmp280: not begun")
	}
	o := osrs[d.oss]
	if err := d.dev.WriteReg(regCtrlMeas, o[1]<<5|o[0]<<2|modeForced); err != nil {
		return 0, 0, fmt.Errorf("bmp280: start conversion failed: %w", err)
	}
	sleep(d.measureTime())

	var buf [6]byte
	if err := d.dev.ReadReg(regPressMsb, buf[:]); err != nil {
		return 0, 0, fmt.Errorf("bmp280: read data failed: %w", err)
	}
	adcP := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	adcT := int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4

	tFine := d.cal.tFine(adcT)
	return tFine / 5120.0, d.cal.pressure(adcP, tFine), nil
}

// tFine is the shared temperature term of the floating-point compensation.
func (c calibration) tFine(adcT int32) float64 {
	a := (float64(adcT)/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	b := float64(adcT)/131072.0 - float64(c.t1)/8192.0
	return a + b*b*float64(c.t3)
}

func (c calibration) pressure(adcP int32, tFine float64) float64 {
	v1 := float64(int32(tFine))/2.0 - 64000.0
	v2 := v1 * v1 * float64(c.p6) / 32768.0
	v2 += v1 * float64(c.p5) * 2.0
	v2 = v2/4.0 + float64(c.p4)*65536.0
	v1 = (float64(c.p3)*v1*v1/524288.0 + float64(c.p2)*v1) / 524288.0
	v1 = (1.0 + v1/32768.0) * float64(c.p1)
	if v1 == 0 {
		return 0
	}
	p := (1048576.0 - float64(adcP) - v2/4096.0) * 6250.0 / v1
	v1 = float64(c.p9) * p * p / 2147483648.0
	v2 = p * float64(c.p8) / 32768.0
	return p + (v1+v2+float64(c.p7))/16.0
}

func (d *Device) ReadPressure() (float64, error) {
	_, p, err := d.Read()
	return p, err
}

func (d *Device) ReadTemperature() (float64, error) {
	t, _, err := d.Read()
	return t, err
}

func (d *Device) ReadAltitude(seaLevelPa float64) (float64, error) {
	p, err := d.ReadPressure()
	if err != nil {
		return 0, err
	}
	return baro.Altitude(p, seaLevelPa), nil
}
