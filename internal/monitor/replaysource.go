package monitor

import (
	"context"
	"errors"
	"time"

	"cansat-altimeter/internal/replay"
)

// ReplaySource plays a recorded flight log with its original timing.
type ReplaySource struct {
	Path  string
	Speed float64
	Loop  bool

	// Sleeper defaults to real time.
	Sleeper replay.Sleeper
}

func (s *ReplaySource) Name() string { return "replay:" + s.Path }

func (s *ReplaySource) Run(ctx context.Context, onLine func(string)) error {
	recs, err := replay.ReadFile(s.Path)
	if err != nil {
		return err
	}
	speed := s.Speed
	if speed <= 0 {
		speed = 1
	}
	sl := s.Sleeper
	if sl == nil {
		sl = ctxSleeper{ctx}
	}
	err = replay.Play(ctx, recs, speed, s.Loop, sl, func(line string) error {
		onLine(line)
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// ctxSleeper cuts a wait short when ctx is done; Play then sees ctx.Err.
type ctxSleeper struct{ ctx context.Context }

func (c ctxSleeper) Sleep(d time.Duration) { sleepCtx(c.ctx, d) }
