package monitor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jacobsa/go-serial/serial"
)

var openPort = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	return serial.Open(opts)
}

var globPorts = filepath.Glob

// CandidatePorts lists serial devices a flight computer usually shows up as.
func CandidatePorts() []string {
	var out []string
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/ttyUSB*"} {
		m, _ := globPorts(pattern)
		out = append(out, m...)
	}
	sort.Strings(out)
	return out
}

// OpenError is returned when the serial port cannot be opened. Candidates
// lists the ports that do exist.
type OpenError struct {
	Port       string
	Err        error
	Candidates []string
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("monitor: open %s: %v", e.Port, e.Err)
	if len(e.Candidates) == 0 {
		return msg + " (no serial ports found)"
	}
	return msg + " (available: " + strings.Join(e.Candidates, ", ") + ")"
}

func (e *OpenError) Unwrap() error { return e.Err }

type SerialSource struct {
	Port string
	Baud uint
}

func (s *SerialSource) Name() string { return "serial:" + s.Port }

func (s *SerialSource) Run(ctx context.Context, onLine func(string)) error {
	port, err := openPort(serial.OpenOptions{
		PortName:        s.Port,
		BaudRate:        s.Baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return &OpenError{Port: s.Port, Err: err, Candidates: CandidatePorts()}
	}
	defer port.Close()

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	if err := scanLines(ctx, port, onLine); err != nil {
		return fmt.Errorf("monitor: read %s: %w", s.Port, err)
	}
	return nil
}
