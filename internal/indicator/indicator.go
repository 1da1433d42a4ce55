// Package indicator drives a status lamp on a GPIO line: lit while the
// altimeter loop is running, dark otherwise.
package indicator

import (
	"fmt"
	"sync"
)

type Config struct {
	// Chip is a gpiochip name or path, e.g. "gpiochip0".
	Chip string
	// Line is the line offset on Chip (BCM numbering on a Raspberry Pi).
	Line      int
	ActiveLow bool
}

// outputLine is a requested GPIO output.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

var openLineFn = openLine

type Lamp struct {
	mu   sync.Mutex
	line outputLine
	on   bool
}

// Open requests the line as an output, initially off.
func Open(cfg Config) (*Lamp, error) {
	if cfg.Line < 0 {
		return nil, fmt.Errorf("indicator: invalid line %d", cfg.Line)
	}
	l, err := openLineFn(cfg)
	if err != nil {
		return nil, err
	}
	return &Lamp{line: l}, nil
}

func (l *Lamp) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return fmt.Errorf("indicator: closed")
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("indicator: set %d: %w", v, err)
	}
	l.on = on
	return nil
}

func (l *Lamp) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Close turns the lamp off and releases the line.
func (l *Lamp) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	_ = l.line.SetValue(0)
	err := l.line.Close()
	l.line = nil
	l.on = false
	return err
}
