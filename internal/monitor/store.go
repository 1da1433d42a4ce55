// Package monitor is the ground side: it reads the altimeter's console
// stream from a serial port, a TCP bridge or a recorded flight log, keeps
// rolling windows of the tracked quantities and optionally logs them to
// SQLite.
package monitor

import (
	"sync"
	"time"

	"cansat-altimeter/internal/telemetry"
)

type Point struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// Store holds one rolling window per tracked key. When a window is full the
// oldest point is dropped.
type Store struct {
	max int

	mu       sync.RWMutex
	series   map[telemetry.Key][]Point
	lines    uint64
	parsed   uint64
	lastSeen time.Time
}

func NewStore(maxPoints int) *Store {
	if maxPoints <= 0 {
		maxPoints = 100
	}
	s := &Store{max: maxPoints, series: make(map[telemetry.Key][]Point, len(telemetry.Keys))}
	for _, k := range telemetry.Keys {
		s.series[k] = make([]Point, 0, maxPoints)
	}
	return s
}

func (s *Store) MaxPoints() int { return s.max }

// Ingest parses one console line and appends its value, if any.
func (s *Store) Ingest(line string, now time.Time) (telemetry.Key, float64, bool) {
	key, v, ok := telemetry.ParseLine(line)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines++
	if !ok {
		return "", 0, false
	}
	s.parsed++
	s.lastSeen = now
	s.appendLocked(key, Point{T: now, V: v})
	return key, v, true
}

// Add appends a point without counting a line.
func (s *Store) Add(key telemetry.Key, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(key, p)
}

func (s *Store) appendLocked(key telemetry.Key, p Point) {
	w := s.series[key]
	if len(w) >= s.max {
		copy(w, w[1:])
		w[len(w)-1] = p
	} else {
		w = append(w, p)
	}
	s.series[key] = w
}

// Series returns a copy of the window for key, oldest first.
func (s *Store) Series(key telemetry.Key) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Point(nil), s.series[key]...)
}

// All returns a copy of every window.
func (s *Store) All() map[telemetry.Key][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[telemetry.Key][]Point, len(s.series))
	for k, w := range s.series {
		out[k] = append([]Point(nil), w...)
	}
	return out
}

type StoreStats struct {
	Lines       uint64                `json:"lines"`
	Parsed      uint64                `json:"parsed"`
	Points      map[telemetry.Key]int `json:"points"`
	LastSeenUTC string                `json:"last_seen_utc,omitempty"`
}

func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := StoreStats{
		Lines:  s.lines,
		Parsed: s.parsed,
		Points: make(map[telemetry.Key]int, len(s.series)),
	}
	for k, w := range s.series {
		st.Points[k] = len(w)
	}
	if !s.lastSeen.IsZero() {
		st.LastSeenUTC = s.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return st
}
