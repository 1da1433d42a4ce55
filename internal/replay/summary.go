package replay

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"cansat-altimeter/internal/telemetry"
)

type Summary struct {
	Started     time.Time
	Segments    int
	Lines       int
	Unparsed    int
	MaxDuration time.Duration
	KeyCounts   map[telemetry.Key]int

	MinFilteredAltitudeM float64
	MaxFilteredAltitudeM float64
}

func Summarize(records []Record) Summary {
	s := Summary{
		KeyCounts:            map[telemetry.Key]int{},
		MinFilteredAltitudeM: math.NaN(),
		MaxFilteredAltitudeM: math.NaN(),
	}
	haveLines := false
	for _, r := range records {
		if r.Start {
			s.Segments++
			if s.Started.IsZero() {
				s.Started = r.Wall
			}
			continue
		}
		haveLines = true
		s.Lines++
		if r.At > s.MaxDuration {
			s.MaxDuration = r.At
		}
		key, v, ok := telemetry.ParseLine(r.Line)
		if !ok {
			s.Unparsed++
			continue
		}
		s.KeyCounts[key]++
		if key == telemetry.KeyFilteredAltitude {
			if math.IsNaN(s.MinFilteredAltitudeM) || v < s.MinFilteredAltitudeM {
				s.MinFilteredAltitudeM = v
			}
			if math.IsNaN(s.MaxFilteredAltitudeM) || v > s.MaxFilteredAltitudeM {
				s.MaxFilteredAltitudeM = v
			}
		}
	}
	if s.Segments == 0 && haveLines {
		s.Segments = 1
	}
	return s
}

// PrintSummary writes a human-readable summary of the flight log at path.
func PrintSummary(w io.Writer, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	recs, err := ReadFile(path)
	if err != nil {
		return err
	}
	s := Summarize(recs)

	fmt.Fprintf(w, "path: %s (%s)\n", path, humanize.Bytes(uint64(st.Size())))
	if !s.Started.IsZero() {
		fmt.Fprintf(w, "started: %s (%s)\n", s.Started.Format(time.RFC3339), humanize.Time(s.Started))
	}
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "lines: %s\n", humanize.Comma(int64(s.Lines)))
	fmt.Fprintf(w, "unparsed_lines: %s\n", humanize.Comma(int64(s.Unparsed)))
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "key_counts:\n")
	for _, k := range telemetry.Keys {
		fmt.Fprintf(w, "  %s: %s\n", k, humanize.Comma(int64(s.KeyCounts[k])))
	}
	if !math.IsNaN(s.MaxFilteredAltitudeM) {
		fmt.Fprintf(w, "filtered_altitude_m: min %.2f max %.2f\n", s.MinFilteredAltitudeM, s.MaxFilteredAltitudeM)
	}
	return nil
}
