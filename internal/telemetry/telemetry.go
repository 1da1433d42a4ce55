// Package telemetry defines the per-cycle altimeter reading, its console
// text block, and the parser the ground monitor uses to read that block back.
package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"cansat-altimeter/internal/sensors"
)

// Reading is everything one control cycle produced.
type Reading struct {
	Seq               uint64    `json:"seq"`
	Time              time.Time `json:"time"`
	PressurePa        float64   `json:"pressure_pa"`
	RawAltitudeM      float64   `json:"raw_altitude_m"`
	FilteredAltitudeM float64   `json:"filtered_altitude_m"`
	BaroTempC         float64   `json:"baro_temp_c"`

	// Nil when no IMU is configured.
	IMU *sensors.Event `json:"imu,omitempty"`
}

// Format writes r as the console block: one "Label: value unit" line per
// quantity followed by a blank line.
func Format(w io.Writer, r Reading) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Pressure: %.2f Pa\n", r.PressurePa)
	fmt.Fprintf(bw, "Raw altitude: %.2f m\n", r.RawAltitudeM)
	fmt.Fprintf(bw, "Filtered altitude: %.2f m\n", r.FilteredAltitudeM)
	fmt.Fprintf(bw, "BMP Temp: %.2f C\n", r.BaroTempC)
	if ev := r.IMU; ev != nil {
		a, g := ev.Acceleration, ev.Gyro
		fmt.Fprintf(bw, "Accel X: %.2f Y: %.2f Z: %.2f m/s^2\n", a.X, a.Y, a.Z)
		fmt.Fprintf(bw, "Gyro X: %.2f Y: %.2f Z: %.2f rad/s\n", g.X, g.Y, g.Z)
		fmt.Fprintf(bw, "MPU Temp: %.2f C\n", ev.TemperatureC)
	}
	bw.WriteString("\n")
	return bw.Flush()
}

// Key names a quantity the monitor tracks.
type Key string

const (
	KeyPressure         Key = "pressure"
	KeyRawAltitude      Key = "raw_altitude"
	KeyFilteredAltitude Key = "filtered_altitude"
	KeyMPUTemp          Key = "mpu_temp"
)

// Keys lists the tracked quantities in display order.
var Keys = []Key{KeyPressure, KeyRawAltitude, KeyFilteredAltitude, KeyMPUTemp}

var patterns = []struct {
	key Key
	re  *regexp.Regexp
}{
	{KeyPressure, regexp.MustCompile(`Pressure:\s*([\d.]+)\s*Pa`)},
	{KeyRawAltitude, regexp.MustCompile(`Raw altitude:\s*([-\d.]+)\s*m`)},
	{KeyFilteredAltitude, regexp.MustCompile(`Filtered altitude:\s*([-\d.]+)\s*m`)},
	{KeyMPUTemp, regexp.MustCompile(`MPU Temp:\s*([\d.]+)\s*C`)},
}

// ParseLine returns the first tracked quantity found in line.
func ParseLine(line string) (Key, float64, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			// "1.2.3" or a lone "-" match the character class but are noise.
			return "", 0, false
		}
		return p.key, v, true
	}
	return "", 0, false
}
