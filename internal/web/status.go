package web

import (
	"sort"
	"sync"
	"time"

	"cansat-altimeter/internal/altimeter"
)

// AltimeterSource is the read side of altimeter.Service.
type AltimeterSource interface {
	Snapshot() altimeter.Snapshot
}

type Status struct {
	service string
	start   time.Time

	mu       sync.RWMutex
	dataDir  string
	alt      AltimeterSource
	sections map[string]func() any
}

func NewStatus(service string) *Status {
	return &Status{
		service:  service,
		start:    time.Now().UTC(),
		sections: map[string]func() any{},
	}
}

func (s *Status) SetAltimeter(src AltimeterSource) {
	s.mu.Lock()
	s.alt = src
	s.mu.Unlock()
}

// SetDataDir selects the filesystem reported under "disk".
func (s *Status) SetDataDir(dir string) {
	s.mu.Lock()
	s.dataDir = dir
	s.mu.Unlock()
}

// SetSection adds a named block to the status document. fn is evaluated on
// every request and must be safe for concurrent use.
func (s *Status) SetSection(name string, fn func() any) {
	s.mu.Lock()
	s.sections[name] = fn
	s.mu.Unlock()
}

// SetStatic adds a section whose value never changes.
func (s *Status) SetStatic(name string, v any) {
	s.SetSection(name, func() any { return v })
}

type StatusSnapshot struct {
	Service   string              `json:"service"`
	NowUTC    string              `json:"now_utc"`
	UptimeSec int64               `json:"uptime_sec"`
	Altimeter *altimeter.Snapshot `json:"altimeter,omitempty"`
	Sections  map[string]any      `json:"sections,omitempty"`
	Disk      *DiskSnapshot       `json:"disk,omitempty"`
	Network   *NetworkSnapshot    `json:"network,omitempty"`
	Board     *BoardSnapshot      `json:"board,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   s.service,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		Network:   snapshotNetwork(),
		Board:     snapshotBoard(),
	}

	s.mu.RLock()
	dataDir := s.dataDir
	alt := s.alt
	names := make([]string, 0, len(s.sections))
	for name := range s.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]func() any, len(names))
	for i, name := range names {
		fns[i] = s.sections[name]
	}
	s.mu.RUnlock()

	snap.Disk = snapshotDisk(dataDir)
	if alt != nil {
		a := alt.Snapshot()
		snap.Altimeter = &a
	}
	if len(names) > 0 {
		snap.Sections = make(map[string]any, len(names))
		for i, name := range names {
			snap.Sections[name] = fns[i]()
		}
	}
	return snap
}
