package icm20948

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/sensors"
)

// fakeI2C ignores banks; the registers the driver reads do not collide.
type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func (f *fakeI2C) last(reg byte) (byte, bool) {
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].reg == reg {
			return f.writes[i].val, true
		}
	}
	return 0, false
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

func begun(t *testing.T, f *fakeI2C) *Device {
	t.Helper()
	noSleep(t)
	d := newWithIO(f)
	require.NoError(t, d.Begin())
	return d
}

func TestBegin_WhoAmIMismatchIsDeviceNotFound(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x68}}}
	err := newWithIO(f).Begin()
	require.ErrorIs(t, err, sensors.ErrDeviceNotFound)

	var de *sensors.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "icm20948", de.Sensor)
}

func TestBegin_NilDev(t *testing.T) {
	assert.ErrorIs(t, New(nil).Begin(), sensors.ErrDeviceNotFound)
}

func TestBegin_WritesInitRegisters(t *testing.T) {
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d := begun(t, f)

	var sawReset, sawWake, sawBank2 bool
	for _, w := range f.writes {
		switch {
		case w.reg == regPwrMgmt1 && w.val == bitReset:
			sawReset = true
		case w.reg == regPwrMgmt1 && w.val == clkAuto:
			sawWake = true
		case w.reg == regBankSel && w.val == bank2<<4:
			sawBank2 = true
		}
	}
	assert.True(t, sawReset)
	assert.True(t, sawWake)
	assert.True(t, sawBank2)

	// Reads happen in bank 0.
	bank, _ := f.last(regBankSel)
	assert.Equal(t, byte(0), bank)

	assert.Equal(t, sensors.AccelRange2G, d.AccelRange())
	assert.Equal(t, sensors.GyroRange250, d.GyroRange())
	assert.Equal(t, sensors.Bandwidth260, d.Bandwidth())
}

func TestConfigure_SharesRegisterBetweenRangeAndFilter(t *testing.T) {
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d := begun(t, f)

	require.NoError(t, d.SetAccelRange(sensors.AccelRange8G))
	require.NoError(t, d.SetFilterBandwidth(sensors.Bandwidth21))
	require.NoError(t, d.SetGyroRange(sensors.GyroRange500))

	accel, _ := f.last(regAccelConfig)
	gyro, _ := f.last(regGyroConfig)
	assert.Equal(t, byte(4<<3|fchoice|2<<1), accel)
	assert.Equal(t, byte(4<<3|fchoice|1<<1), gyro)

	require.NoError(t, d.SetFilterBandwidth(sensors.Bandwidth260))
	accel, _ = f.last(regAccelConfig)
	assert.Equal(t, byte(2<<1), accel)

	assert.Error(t, d.SetFilterBandwidth(sensors.Bandwidth(7)))
	assert.Equal(t, sensors.Bandwidth260, d.Bandwidth())
	assert.Error(t, d.SetAccelRange(sensors.AccelRange(3)))
	assert.Error(t, d.SetGyroRange(sensors.GyroRange(42)))
}

func TestConfigure_BeforeBeginFails(t *testing.T) {
	d := newWithIO(&fakeI2C{})
	assert.Error(t, d.SetAccelRange(sensors.AccelRange4G))
	_, err := d.ReadEvent()
	assert.Error(t, err)
}

func TestReadEvent_ScalesToSIUnits(t *testing.T) {
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	f.regs[regAccelXoutH] = []byte{
		0x40, 0x00, // ax = 16384 -> 1 g at ±2 g
		0x00, 0x00,
		0xC0, 0x00, // az = -16384
		0x00, 0x83, // gx = 131 -> 1 deg/s at ±250 dps
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00, // temp raw 0 -> 21 C
	}
	d := begun(t, f)

	ev, err := d.ReadEvent()
	require.NoError(t, err)
	assert.InDelta(t, sensors.StandardGravity, ev.Acceleration.X, 1e-9)
	assert.InDelta(t, -sensors.StandardGravity, ev.Acceleration.Z, 1e-9)
	assert.InDelta(t, math.Pi/180, ev.Gyro.X, 1e-9)
	assert.InDelta(t, 21.0, ev.TemperatureC, 1e-9)
}

func TestReadEvent_BusError(t *testing.T) {
	f := &fakeI2C{
		regs:       map[byte][]byte{regWhoAmI: {whoAmIVal}},
		readErrFor: map[byte]error{regAccelXoutH: errors.New("remote I/O error")},
	}
	d := begun(t, f)
	_, err := d.ReadEvent()
	assert.ErrorContains(t, err, "remote I/O error")
}

var _ sensors.IMU = (*Device)(nil)
