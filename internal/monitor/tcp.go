package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPSource reads the console stream from a serial-over-TCP bridge such as
// ser2net, reconnecting after failures.
type TCPSource struct {
	Addr           string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration

	mu       sync.RWMutex
	state    string
	lastErr  string
	connects uint64
}

type TCPSnapshot struct {
	Addr      string `json:"addr"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
	Connects  uint64 `json:"connects"`
}

func (s *TCPSource) Name() string { return "tcp:" + s.Addr }

func (s *TCPSource) Snapshot() TCPSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state == "" {
		state = "stopped"
	}
	return TCPSnapshot{Addr: s.Addr, State: state, LastError: s.lastErr, Connects: s.connects}
}

// Run returns only when ctx is done.
func (s *TCPSource) Run(ctx context.Context, onLine func(string)) error {
	if s.Addr == "" {
		return fmt.Errorf("monitor: tcp addr is required")
	}
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	dialer := &net.Dialer{Timeout: s.DialTimeout}
	if dialer.Timeout <= 0 {
		dialer.Timeout = 2 * time.Second
	}

	for {
		if ctx.Err() != nil {
			s.setState("stopped", "")
			return nil
		}

		s.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", s.Addr)
		if err != nil {
			s.setState("error", err.Error())
			if !sleepCtx(ctx, delay) {
				s.setState("stopped", "")
				return nil
			}
			continue
		}

		s.mu.Lock()
		s.connects++
		s.mu.Unlock()
		s.setState("connected", "")

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = scanLines(ctx, conn, onLine)
		stop()
		_ = conn.Close()
		if err != nil {
			s.setState("disconnected", err.Error())
		} else {
			s.setState("disconnected", "")
		}

		if !sleepCtx(ctx, delay) {
			s.setState("stopped", "")
			return nil
		}
	}
}

func (s *TCPSource) setState(state, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == "connected" || state == "stopped" {
		s.lastErr = ""
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
