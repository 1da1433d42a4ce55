package telemetry

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/sensors"
)

func sample() Reading {
	return Reading{
		Seq:               3,
		Time:              time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		PressurePa:        101205.5,
		RawAltitudeM:      10.004,
		FilteredAltitudeM: 9.5,
		BaroTempC:         21.25,
		IMU: &sensors.Event{
			Acceleration: sensors.Vector{X: 0.1, Y: -0.2, Z: 9.81},
			Gyro:         sensors.Vector{X: 0, Y: 0.01, Z: -1.5},
			TemperatureC: 25.1,
		},
	}
}

func TestFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, sample()))

	want := "" +
		"Pressure: 101205.50 Pa\n" +
		"Raw altitude: 10.00 m\n" +
		"Filtered altitude: 9.50 m\n" +
		"BMP Temp: 21.25 C\n" +
		"Accel X: 0.10 Y: -0.20 Z: 9.81 m/s^2\n" +
		"Gyro X: 0.00 Y: 0.01 Z: -1.50 rad/s\n" +
		"MPU Temp: 25.10 C\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestFormat_WithoutIMU(t *testing.T) {
	r := sample()
	r.IMU = nil

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, r))
	assert.NotContains(t, buf.String(), "MPU Temp")
	assert.True(t, strings.HasSuffix(buf.String(), "BMP Temp: 21.25 C\n\n"))
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		key  Key
		v    float64
		ok   bool
	}{
		{"Pressure: 101325.00 Pa", KeyPressure, 101325, true},
		{"Raw altitude: -3.25 m", KeyRawAltitude, -3.25, true},
		{"Filtered altitude: 12.50 m", KeyFilteredAltitude, 12.5, true},
		{"MPU Temp: 36.53 C", KeyMPUTemp, 36.53, true},
		{"  Pressure:101000Pa  ", KeyPressure, 101000, true},
		{"BMP Temp: 21.00 C", "", 0, false},
		{"Accel X: 0.00 Y: 0.00 Z: 9.81 m/s^2", "", 0, false},
		{"Raw altitude: - m", "", 0, false},
		{"", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			k, v, ok := ParseLine(tc.line)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.key, k)
			assert.Equal(t, tc.v, v)
		})
	}
}

func TestFormatThenParse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, sample()))

	got := map[Key]float64{}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		if k, v, ok := ParseLine(sc.Text()); ok {
			got[k] = v
		}
	}
	assert.Equal(t, map[Key]float64{
		KeyPressure:         101205.5,
		KeyRawAltitude:      10,
		KeyFilteredAltitude: 9.5,
		KeyMPUTemp:          25.1,
	}, got)
}
