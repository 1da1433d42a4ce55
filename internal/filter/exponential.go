// Package filter provides a single-pole exponential low-pass filter.
package filter

import (
	"errors"
	"fmt"
)

// ErrNotSeeded is returned by Update before the filter has been seeded.
var ErrNotSeeded = errors.New("filter: not seeded")

// Exponential is a single-pole IIR low-pass filter:
//
//	y = alpha*y + (1-alpha)*x
//
// A larger alpha gives a slower response and more noise rejection.
// Exponential is not safe for concurrent use.
type Exponential struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewExponential returns a filter with the given smoothing factor.
// alpha must lie in the open interval (0, 1).
func NewExponential(alpha float64) (*Exponential, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("filter: smoothing factor %v must be in (0,1)", alpha)
	}
	return &Exponential{alpha: alpha}, nil
}

// Alpha returns the smoothing factor.
func (f *Exponential) Alpha() float64 { return f.alpha }

// Seeded reports whether Seed has been called.
func (f *Exponential) Seeded() bool { return f.seeded }

// Value returns the current filtered value (zero before seeding).
func (f *Exponential) Value() float64 { return f.value }

// Seed sets the initial state. Only the first call has an effect; the filter
// is never reset once running.
func (f *Exponential) Seed(x float64) {
	if f.seeded {
		return
	}
	f.value = x
	f.seeded = true
}

// Update blends x into the state and returns the new filtered value.
func (f *Exponential) Update(x float64) (float64, error) {
	if !f.seeded {
		return 0, ErrNotSeeded
	}
	f.value = Blend(f.alpha, f.value, x)
	return f.value, nil
}

// Blend returns alpha*prev + (1-alpha)*x.
func Blend(alpha, prev, x float64) float64 {
	return alpha*prev + (1-alpha)*x
}
