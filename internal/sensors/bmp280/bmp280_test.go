package bmp280

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/sensors"
)

type fakeI2C struct {
	// Simple register model.
	regs map[byte][]byte

	// Calibration read behavior.
	calibReads int
	calibSeq   [][]byte

	writes []writeOp
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	b, ok := f.regs[reg]
	if !ok || len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if reg == regCalib00 {
		f.calibReads++
		idx := f.calibReads - 1
		if idx < len(f.calibSeq) {
			copy(dst, f.calibSeq[idx])
			return nil
		}
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}

	b, ok := f.regs[reg]
	if !ok {
		return errors.New("no reg")
	}
	copy(dst, b)
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

// datasheetCalib holds the compensation example from the BMP280 datasheet.
func datasheetCalib() []byte {
	vals := []int{27504, 26435, -1000, 36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000}
	buf := make([]byte, calibLen)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int32(v)))
	}
	return buf
}

func TestBegin_RetriesCalibrationAfterReset(t *testing.T) {
	noSleep(t)

	calibZero := make([]byte, calibLen)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBMP280}},
		calibSeq: [][]byte{calibZero, datasheetCalib()},
	}

	require.NoError(t, newWithIO(f, Standard).Begin())
	assert.GreaterOrEqual(t, f.calibReads, 2, "expected calibration to be retried")
}

func TestBegin_FailsOnInvalidCalibration(t *testing.T) {
	noSleep(t)

	calibZero := make([]byte, calibLen)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBMP280}},
		calibSeq: [][]byte{calibZero, calibZero, calibZero},
	}

	err := newWithIO(f, Standard).Begin()
	require.Error(t, err)
	assert.NotErrorIs(t, err, sensors.ErrDeviceNotFound)
}

func TestBegin_WrongChipIsDeviceNotFound(t *testing.T) {
	noSleep(t)

	// A BMP180 answers 0x55 at the same register.
	f := &fakeI2C{regs: map[byte][]byte{regID: {0x55}}}
	err := newWithIO(f, Standard).Begin()
	require.ErrorIs(t, err, sensors.ErrDeviceNotFound)
	assert.Empty(t, f.writes, "no configuration should be written to a foreign chip")
}

func TestRead_DatasheetExample(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{
		regs: map[byte][]byte{
			regID: {chipIDBMP280},
			// adc_P=415148, adc_T=519888 left-aligned in 20 bits.
			regPressMsb: {0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00},
		},
		calibSeq: [][]byte{datasheetCalib()},
	}
	d := newWithIO(f, Standard)
	require.NoError(t, d.Begin())

	tc, p, err := d.Read()
	require.NoError(t, err)
	assert.InDelta(t, 25.08, tc, 0.01)
	assert.InDelta(t, 100653.26, p, 0.05)

	alt, err := d.ReadAltitude(p)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, alt, 1e-9)

	alt, err = d.ReadAltitude(baro.StandardSeaLevelPa)
	require.NoError(t, err)
	assert.InDelta(t, baro.Altitude(p, baro.StandardSeaLevelPa), alt, 1e-9)
}

func TestRead_BeforeBeginFails(t *testing.T) {
	_, err := newWithIO(&fakeI2C{}, Standard).ReadPressure()
	require.Error(t, err)
}

func TestRead_ForcedModeEachSample(t *testing.T) {
	var slept []time.Duration
	old := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = old })

	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:       {chipIDBMP280},
			regPressMsb: {0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00},
		},
		calibSeq: [][]byte{datasheetCalib()},
	}
	d := newWithIO(f, UltraHighRes)
	require.NoError(t, d.Begin())
	f.writes = nil
	slept = nil

	_, err := d.ReadPressure()
	require.NoError(t, err)
	_, err = d.ReadTemperature()
	require.NoError(t, err)

	// osrs_t=x2, osrs_p=x16, mode=forced.
	want := writeOp{reg: regCtrlMeas, val: 0x02<<5 | 0x05<<2 | 0x01}
	assert.Equal(t, []writeOp{want, want}, f.writes)
	require.Len(t, slept, 2)
	assert.InDelta(t, 43.225, float64(slept[0])/float64(time.Millisecond), 1e-6)
}

func TestNew_ClampsOversampling(t *testing.T) {
	assert.Equal(t, UltraHighRes, newWithIO(&fakeI2C{}, Oversampling(7)).oss)
}

var _ sensors.Barometer = (*Device)(nil)
