// Package sim provides a deterministic, script-driven flight and simulated
// barometer/IMU devices that follow it. It lets the altimeter run without
// hardware and doubles as the test double for the sensor capabilities.
package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FlightScript describes a vertical flight profile.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 140s
//	sea_level_pa: 101325
//	keyframes:
//	  - t: 0s
//	    alt_m: 0
//	    temp_c: 21
//	    spin_dps: 0
//	  - t: 8s
//	    alt_m: 950
//	    temp_c: 15
//	    spin_dps: 90
//
// Keyframes must use non-decreasing t values.
type FlightScript struct {
	Version    int           `yaml:"version"`
	Duration   time.Duration `yaml:"duration"`
	SeaLevelPa float64       `yaml:"sea_level_pa"`
	Keyframes  []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped flight state.
type Keyframe struct {
	T            time.Duration `yaml:"t"`
	AltitudeM    float64       `yaml:"alt_m"`
	TemperatureC float64       `yaml:"temp_c"`
	SpinDPS      float64       `yaml:"spin_dps"`
}

// Flight is the validated, runtime representation.
//
// Use StateAt to compute the deterministic state at a given elapsed time.
type Flight struct {
	script FlightScript
	// Derived duration (script.Duration or max keyframe time).
	duration time.Duration
}

// State is the flight state at one instant.
type State struct {
	AltitudeM    float64
	TemperatureC float64
	SpinDPS      float64
	// Vertical speed in m/s, from the active segment.
	ClimbMS float64
}

// DefaultScript is a short CanSat drop: ten seconds on the pad, a boost to
// 1000 m, then a DefaultParachute descent and fifteen seconds on the ground.
func DefaultScript() FlightScript {
	const groundTempC = 21.0
	kfs := []Keyframe{
		{T: 0, AltitudeM: 0, TemperatureC: groundTempC},
		{T: 10 * time.Second, AltitudeM: 0, TemperatureC: groundTempC},
		{T: 18 * time.Second, AltitudeM: 950, TemperatureC: groundTempC - 0.0065*950, SpinDPS: 120},
	}
	// DefaultParachute always validates.
	descent, _ := DefaultParachute().Descent(20*time.Second, 1000, groundTempC, 60, time.Second)
	kfs = append(kfs, descent...)
	landed := kfs[len(kfs)-1]
	kfs = append(kfs, Keyframe{T: landed.T + 15*time.Second, TemperatureC: groundTempC})
	return FlightScript{Version: 1, SeaLevelPa: 101325, Keyframes: kfs}
}

// LoadScript reads and unmarshals a YAML flight script from path.
func LoadScript(path string) (FlightScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FlightScript{}, err
	}
	return ParseScriptYAML(b)
}

// ParseScriptYAML parses a YAML flight script.
func ParseScriptYAML(b []byte) (FlightScript, error) {
	var s FlightScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return FlightScript{}, err
	}
	return s, nil
}

// NewFlight validates script and returns a runtime Flight.
func NewFlight(script FlightScript) (*Flight, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported flight version %d", script.Version)
	}
	if script.SeaLevelPa == 0 {
		script.SeaLevelPa = 101325
	}
	if script.SeaLevelPa < 0 {
		return nil, fmt.Errorf("sea_level_pa must be > 0")
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if kf.AltitudeM >= 44330 {
			return nil, fmt.Errorf("keyframes[%d].alt_m must be < 44330", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	return &Flight{script: script, duration: dur}, nil
}

// Duration returns the effective flight duration.
func (f *Flight) Duration() time.Duration {
	if f == nil {
		return 0
	}
	return f.duration
}

// SeaLevelPa is the sea-level pressure the simulated atmosphere uses.
func (f *Flight) SeaLevelPa() float64 {
	if f == nil {
		return 0
	}
	return f.script.SeaLevelPa
}

// StateAt computes the flight state at elapsed.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is clamped
// to [0, Duration()].
func (f *Flight) StateAt(elapsed time.Duration, loop bool) State {
	if f == nil {
		return State{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if f.duration > 0 {
		if loop {
			elapsed = elapsed % f.duration
		} else if elapsed > f.duration {
			elapsed = f.duration
		}
	}

	k0, k1, alpha := selectSegment(f.script.Keyframes, elapsed)
	st := State{
		AltitudeM:    lerp(k0.AltitudeM, k1.AltitudeM, alpha),
		TemperatureC: lerp(k0.TemperatureC, k1.TemperatureC, alpha),
		SpinDPS:      lerp(k0.SpinDPS, k1.SpinDPS, alpha),
	}
	if dt := (k1.T - k0.T).Seconds(); dt > 0 {
		st.ClimbMS = (k1.AltitudeM - k0.AltitudeM) / dt
	}
	return st
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
