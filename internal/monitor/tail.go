package monitor

import (
	"sync"
	"unicode/utf8"
)

// tailBuffer holds the last raw lines received, shown in the status page so
// an operator can see what the can is actually sending.
type tailBuffer struct {
	mu    sync.Mutex
	width int
	ring  []string
	pos   int
	n     int
}

func newTailBuffer(lines, width int) *tailBuffer {
	if lines < 0 {
		lines = 0
	}
	if width <= 0 {
		width = 1024
	}
	return &tailBuffer{width: width, ring: make([]string, lines)}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring) == 0 {
		return
	}
	t.ring[t.pos] = clip(line, t.width)
	t.pos = (t.pos + 1) % len(t.ring)
	if t.n < len(t.ring) {
		t.n++
	}
}

func (t *tailBuffer) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, t.n)
	start := (t.pos - t.n + len(t.ring)) % max(len(t.ring), 1)
	for i := 0; i < t.n; i++ {
		out = append(out, t.ring[(start+i)%len(t.ring)])
	}
	return out
}

// clip cuts s to at most width bytes without splitting a rune.
func clip(s string, width int) string {
	if len(s) <= width {
		return s
	}
	s = s[:width]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
