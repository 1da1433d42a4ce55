package altimeter

import (
	"io"
	"sync"

	"cansat-altimeter/internal/telemetry"
)

// Sink receives every reading the control loop produces. Emit is called from
// the control goroutine; a slow sink delays the next cycle.
type Sink interface {
	Name() string
	Emit(r telemetry.Reading) error
}

// Console writes the human-readable telemetry block.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Emit(r telemetry.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return telemetry.Format(c.w, r)
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(telemetry.Reading) error
}

func (f SinkFunc) Name() string { return f.Label }

func (f SinkFunc) Emit(r telemetry.Reading) error { return f.Fn(r) }
