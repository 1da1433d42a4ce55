package web

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DiskSnapshot describes the filesystem holding the flight data (recording
// or datalog).
type DiskSnapshot struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes,omitempty"`
	AvailBytes uint64  `json:"avail_bytes,omitempty"`
	Avail      string  `json:"avail,omitempty"`
	UsedPct    float64 `json:"used_pct,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}

type NetworkSnapshot struct {
	// LocalAddrs are "iface: cidr" entries for non-loopback IPv4 addresses,
	// so a ground station knows where to point its browser or UDP listener.
	LocalAddrs []string `json:"local_addrs,omitempty"`
}

// BoardSnapshot is the SoC temperature; the flight computer sits in a
// sealed can.
type BoardSnapshot struct {
	CPUTempC  float64 `json:"cpu_temp_c,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

var cpuTempPath = "/sys/class/thermal/thermal_zone0/temp"

// parseCPUTempC accepts millidegrees (the usual sysfs format) or degrees.
func parseCPUTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cpu temp empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp %q: %w", s, err)
	}
	if n > 1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

func snapshotBoard() *BoardSnapshot {
	b, err := os.ReadFile(cpuTempPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &BoardSnapshot{LastError: err.Error()}
	}
	t, err := parseCPUTempC(string(b))
	if err != nil {
		return &BoardSnapshot{LastError: err.Error()}
	}
	return &BoardSnapshot{CPUTempC: t}
}
