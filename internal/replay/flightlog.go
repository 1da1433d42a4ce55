// Package replay records the telemetry console stream to a file and plays
// it back with its original timing, so the ground monitor can be exercised
// without a serial link.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cansat-altimeter/internal/telemetry"
)

// A flight log is UTF-8 text, one entry per line:
//
//	START 2024-06-01T10:00:00Z
//	0.000 "Pressure: 101200.00 Pa"
//	0.500 "Pressure: 101190.00 Pa"
//
// START opens a segment and may carry the wall-clock time of its first
// entry. Entries are seconds since START (millisecond resolution) followed
// by the console line as a Go string literal. Blank lines and '#' comments
// are skipped.

const startMarker = "START"

type Record struct {
	At   time.Duration
	Line string

	// Start marks a segment boundary; Wall is its origin when recorded.
	Start bool
	Wall  time.Time
}

// Parse reads a whole flight log.
func Parse(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		rec, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", n, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return recs, nil
}

func parseEntry(line string) (Record, error) {
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if head == startMarker {
		rec := Record{Start: true}
		if rest != "" {
			t, err := time.Parse(time.RFC3339Nano, rest)
			if err != nil {
				return Record{}, fmt.Errorf("start time: %w", err)
			}
			rec.Wall = t
		}
		return rec, nil
	}
	if rest == "" {
		return Record{}, errors.New("want <seconds> <quoted line>")
	}
	sec, err := strconv.ParseFloat(head, 64)
	if err != nil {
		return Record{}, fmt.Errorf("offset %q: %w", head, err)
	}
	if sec < 0 {
		return Record{}, fmt.Errorf("negative offset %s", head)
	}
	text, err := strconv.Unquote(rest)
	if err != nil {
		return Record{}, fmt.Errorf("text %s: %w", rest, err)
	}
	at := time.Duration(sec * float64(time.Second)).Round(time.Millisecond)
	return Record{At: at, Line: text}, nil
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Writer records console lines. It is also a telemetry sink: Emit writes the
// console block of a reading at the reading's time.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	start   time.Time
	started bool
	closed  bool
}

// CreateWriter truncates path. The START marker is written with the first
// line, stamped with that line's time.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return &Writer{f: f, w: bufio.NewWriterSize(f, 32*1024)}, nil
}

func (ww *Writer) Name() string { return "recorder" }

func (ww *Writer) WriteLine(now time.Time, line string) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	return ww.writeLine(now, line)
}

func (ww *Writer) writeLine(now time.Time, line string) error {
	if ww.closed {
		return errors.New("replay: writer is closed")
	}
	if line == "" {
		return nil
	}
	if !ww.started {
		ww.start, ww.started = now, true
		if _, err := fmt.Fprintf(ww.w, "%s %s\n", startMarker, now.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	off := max(now.Sub(ww.start), 0)
	_, err := fmt.Fprintf(ww.w, "%.3f %s\n", off.Seconds(), strconv.Quote(line))
	return err
}

// Emit flushes after every reading so a crash loses at most one block.
func (ww *Writer) Emit(r telemetry.Reading) error {
	var buf bytes.Buffer
	if err := telemetry.Format(&buf, r); err != nil {
		return err
	}
	ww.mu.Lock()
	defer ww.mu.Unlock()
	for _, line := range strings.Split(buf.String(), "\n") {
		if err := ww.writeLine(r.Time, line); err != nil {
			return err
		}
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	err := ww.w.Flush()
	if cerr := ww.f.Close(); err == nil {
		err = cerr
	}
	return err
}
