package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/baro"
	"cansat-altimeter/internal/sensors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRig(t *testing.T, opts Options) (*Rig, *fakeClock) {
	t.Helper()
	f, err := NewFlight(FlightScript{Keyframes: []Keyframe{
		{T: 0, AltitudeM: 0, TemperatureC: 20},
		{T: 10 * time.Second, AltitudeM: 100, TemperatureC: 20, SpinDPS: 90},
		{T: 20 * time.Second, AltitudeM: 100, TemperatureC: 20, SpinDPS: 90},
	}})
	require.NoError(t, err)
	clk := &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	opts.Clock = clk.Now
	return NewRig(f, opts), clk
}

func TestBarometer_FollowsStandardAtmosphere(t *testing.T) {
	rig, clk := newTestRig(t, Options{})
	b := rig.Barometer()
	require.NoError(t, b.Begin())

	p, err := b.ReadPressure()
	require.NoError(t, err)
	assert.InDelta(t, 101325.0, p, 1e-6)

	clk.Advance(10 * time.Second)
	alt, err := b.ReadAltitude(baro.StandardSeaLevelPa)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, alt, 1e-6)

	tc, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 20.0, tc)
	assert.Equal(t, 3, b.Reads())
}

func TestBarometer_SeededNoiseIsDeterministic(t *testing.T) {
	read := func() []float64 {
		rig, _ := newTestRig(t, Options{Seed: 7, PressureNoisePa: 3})
		b := rig.Barometer()
		require.NoError(t, b.Begin())
		var out []float64
		for i := 0; i < 5; i++ {
			p, err := b.ReadPressure()
			require.NoError(t, err)
			out = append(out, p)
		}
		return out
	}
	a, b := read(), read()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0], a[1])
}

func TestAbsentDevicesAreNotFound(t *testing.T) {
	rig, _ := newTestRig(t, Options{BaroAbsent: true, IMUAbsent: true})

	b := rig.Barometer()
	require.ErrorIs(t, b.Begin(), sensors.ErrDeviceNotFound)
	_, err := b.ReadPressure()
	require.Error(t, err)

	require.ErrorIs(t, rig.IMU().Begin(), sensors.ErrDeviceNotFound)
}

func TestFailNext_QueuesErrors(t *testing.T) {
	rig, _ := newTestRig(t, Options{})
	b := rig.Barometer()
	require.NoError(t, b.Begin())

	boom := errors.New("bus glitch")
	b.FailNext(boom)

	_, err := b.ReadPressure()
	require.ErrorIs(t, err, boom)
	_, err = b.ReadPressure()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Reads())
}

func TestIMU_GravitySpinAndClipping(t *testing.T) {
	rig, clk := newTestRig(t, Options{})
	m := rig.IMU()
	require.NoError(t, m.Begin())
	require.NoError(t, m.SetAccelRange(sensors.AccelRange4G))
	require.NoError(t, m.SetFilterBandwidth(sensors.Bandwidth44))
	assert.Equal(t, sensors.Bandwidth44, m.Bandwidth())

	clk.Advance(15 * time.Second)
	ev, err := m.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), ev.Time)
	assert.InDelta(t, sensors.StandardGravity, ev.Acceleration.Z, 1e-9)
	assert.InDelta(t, math.Pi/2, ev.Gyro.Z, 1e-9)
	assert.Equal(t, 24.0, ev.TemperatureC)

	// Climb rate drops from 10 m/s to 0 at t=10s: a 100 m/s² deceleration
	// spike that clips at the 4 g full scale.
	clk.t = rig.start.Add(10*time.Second + 50*time.Millisecond)
	ev, err = m.ReadEvent()
	require.NoError(t, err)
	assert.InDelta(t, -4*sensors.StandardGravity, ev.Acceleration.Z, 1e-9)
}

func TestIMU_RejectsInvalidConfiguration(t *testing.T) {
	rig, _ := newTestRig(t, Options{})
	m := rig.IMU()
	require.NoError(t, m.Begin())
	assert.Error(t, m.SetAccelRange(sensors.AccelRange(5)))
	assert.Error(t, m.SetGyroRange(sensors.GyroRange(100)))
	assert.Error(t, m.SetFilterBandwidth(sensors.Bandwidth(1)))
	assert.Equal(t, sensors.AccelRange2G, m.AccelRange())
	assert.Equal(t, sensors.GyroRange250, m.GyroRange())
}

var (
	_ sensors.Barometer = (*Barometer)(nil)
	_ sensors.IMU       = (*IMU)(nil)
)
