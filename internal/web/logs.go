package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxPartial = 64 * 1024

// LogBuffer keeps the most recent log lines in a fixed ring. It is the
// zap tee target behind /api/logs.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []string
	next    int
	full    bool
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]string, maxLines)}
}

// Write collects p as lines; a trailing fragment waits for its newline.
// It never fails.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	b.partial = nil
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.push(string(data[:i]))
		data = data[i+1:]
	}
	switch {
	case len(data) > maxPartial:
		// A runaway line without newlines is flushed as is.
		b.push(string(data))
	case len(data) > 0:
		b.partial = append([]byte(nil), data...)
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (b *LogBuffer) Sync() error { return nil }

func (b *LogBuffer) push(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if b.full {
		b.dropped++
	}
	b.ring[b.next] = line
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
}

// ordered returns the held lines oldest first.
func (b *LogBuffer) ordered() []string {
	if !b.full {
		return append([]string(nil), b.ring[:b.next]...)
	}
	out := make([]string, 0, len(b.ring))
	out = append(out, b.ring[b.next:]...)
	return append(out, b.ring[:b.next]...)
}

// Snapshot returns up to tail of the newest lines (200 when tail <= 0) and
// how many lines the ring has overwritten.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	return b.snapshot(tail, "")
}

func (b *LogBuffer) snapshot(tail int, minLevel string) ([]string, uint64) {
	b.mu.Lock()
	all := b.ordered()
	dropped := b.dropped
	b.mu.Unlock()

	if floor := levelRank(minLevel); floor > 0 {
		kept := all[:0]
		for _, l := range all {
			if lineLevel(l) >= floor {
				kept = append(kept, l)
			}
		}
		all = kept
	}
	if tail <= 0 {
		tail = 200
	}
	if tail < len(all) {
		all = all[len(all)-tail:]
	}
	return all, dropped
}

// Console-encoded zap entries carry the level as a tab-delimited field.
var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR", "DPANIC", "PANIC", "FATAL"}

func levelRank(name string) int {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return i + 1
		}
	}
	return 0
}

func lineLevel(line string) int {
	for i, n := range levelNames {
		if strings.Contains(line, "\t"+n+"\t") {
			return i + 1
		}
	}
	return 0
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Handler serves the ring. Query: tail=1..5000, level=debug|info|warn|error
// (minimum), format=text.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()

		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		level := strings.TrimSpace(q.Get("level"))
		if level != "" && levelRank(level) == 0 {
			http.Error(w, "unknown level", http.StatusBadRequest)
			return
		}

		lines, dropped := b.snapshot(tail, level)
		w.Header().Set("Cache-Control", "no-store")
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(w, line)
			}
			return
		}
		WriteJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}
