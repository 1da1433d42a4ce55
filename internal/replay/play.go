package replay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Sleeper interface {
	Sleep(d time.Duration)
}

type wallSleeper struct{}

func (wallSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// segments splits records at START markers, dropping empty segments.
func segments(records []Record) [][]Record {
	var out [][]Record
	cur := 0
	for i, r := range records {
		if r.Start {
			if i > cur {
				out = append(out, records[cur:i])
			}
			cur = i + 1
		}
	}
	if cur < len(records) {
		out = append(out, records[cur:])
	}
	return out
}

// Play hands every recorded line to cb, pacing lines by their recorded
// offsets divided by speed (2 plays twice as fast). Each segment starts
// without a wait. With loop set it repeats until ctx is done or cb fails.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(line string) error) error {
	switch {
	case speed <= 0:
		return fmt.Errorf("replay: speed must be > 0")
	case cb == nil:
		return errors.New("replay: callback is nil")
	}
	segs := segments(records)
	if len(segs) == 0 {
		return errors.New("replay: no records")
	}
	if sleeper == nil {
		sleeper = wallSleeper{}
	}

	for {
		for _, seg := range segs {
			if err := playSegment(ctx, seg, speed, sleeper, cb); err != nil {
				return err
			}
		}
		if !loop {
			return nil
		}
	}
}

func playSegment(ctx context.Context, seg []Record, speed float64, sleeper Sleeper, cb func(string) error) error {
	prev := seg[0].At
	for _, r := range seg {
		if err := ctx.Err(); err != nil {
			return err
		}
		if gap := time.Duration(float64(r.At-prev) / speed); gap > 0 {
			sleeper.Sleep(gap)
		}
		prev = r.At
		if err := cb(r.Line); err != nil {
			return err
		}
	}
	return nil
}
