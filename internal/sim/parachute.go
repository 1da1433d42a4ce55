package sim

import (
	"fmt"
	"math"
	"time"
)

// Parachute is a point-mass drag model of the can under a vented canopy
// that opens linearly over DeployTime.
type Parachute struct {
	MassKg          float64
	Gravity         float64 // m/s²
	AirDensity      float64 // kg/m³
	DragCoefficient float64
	CanopyDiameterM float64
	VentDiameterM   float64
	DeployTime      time.Duration
}

// DefaultParachute is a 250 g can under a 40 cm canopy with a 6 cm vent.
func DefaultParachute() Parachute {
	return Parachute{
		MassKg:          0.25,
		Gravity:         9.82,
		AirDensity:      1.2,
		DragCoefficient: 1.5,
		CanopyDiameterM: 0.40,
		VentDiameterM:   0.06,
		DeployTime:      time.Second,
	}
}

func (p Parachute) validate() error {
	switch {
	case p.MassKg <= 0:
		return fmt.Errorf("parachute mass must be > 0")
	case p.Gravity <= 0 || p.AirDensity <= 0 || p.DragCoefficient <= 0:
		return fmt.Errorf("parachute gravity, air density and drag coefficient must be > 0")
	case p.VentDiameterM < 0 || p.VentDiameterM >= p.CanopyDiameterM:
		return fmt.Errorf("parachute vent must be smaller than the canopy")
	case p.DeployTime < 0:
		return fmt.Errorf("parachute deploy time must be >= 0")
	}
	return nil
}

// Area is the effective canopy area (canopy minus vent) in m².
func (p Parachute) Area() float64 {
	rc := p.CanopyDiameterM / 2
	rv := p.VentDiameterM / 2
	return math.Pi * (rc*rc - rv*rv)
}

// TerminalVelocity is the fully deployed steady descent rate in m/s.
func (p Parachute) TerminalVelocity() float64 {
	return math.Sqrt(2 * p.MassKg * p.Gravity / (p.AirDensity * p.DragCoefficient * p.Area()))
}

func (p Parachute) areaAt(t time.Duration) float64 {
	if p.DeployTime <= 0 || t >= p.DeployTime {
		return p.Area()
	}
	return p.Area() * float64(t) / float64(p.DeployTime)
}

// Velocity integrates the descent speed (positive down) from rest with
// explicit Euler steps of dt, returning one value per step in [0, until).
func (p Parachute) Velocity(dt, until time.Duration) ([]float64, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be > 0")
	}
	n := int(until / dt)
	if n <= 0 {
		return nil, nil
	}
	v := make([]float64, n)
	h := dt.Seconds()
	for i := 1; i < n; i++ {
		drag := 0.5 * p.AirDensity * p.DragCoefficient * p.areaAt(time.Duration(i)*dt) * v[i-1] * v[i-1]
		a := p.Gravity - drag/p.MassKg
		v[i] = v[i-1] + a*h
	}
	return v, nil
}

// Descent integrates a fall from startAltM to the ground starting at t0 and
// returns one keyframe per step. Temperature follows the standard lapse rate
// from groundTempC; the can spins at spinDPS.
func (p Parachute) Descent(t0 time.Duration, startAltM, groundTempC, spinDPS float64, step time.Duration) ([]Keyframe, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be > 0")
	}
	const dt = 10 * time.Millisecond
	const lapse = 0.0065 // K/m

	kf := func(t time.Duration, alt float64) Keyframe {
		return Keyframe{T: t, AltitudeM: alt, TemperatureC: groundTempC - lapse*alt, SpinDPS: spinDPS}
	}

	out := []Keyframe{kf(t0, startAltM)}
	alt, v := startAltM, 0.0
	for t := dt; alt > 0; t += dt {
		drag := 0.5 * p.AirDensity * p.DragCoefficient * p.areaAt(t) * v * v
		v += (p.Gravity - drag/p.MassKg) * dt.Seconds()
		alt -= v * dt.Seconds()
		if alt <= 0 {
			out = append(out, kf(t0+t, 0))
			break
		}
		if t%step == 0 {
			out = append(out, kf(t0+t, alt))
		}
	}
	return out, nil
}
