package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"cansat-altimeter/internal/charts"
	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/monitor"
	"cansat-altimeter/internal/web"
)

type app struct {
	cfg     config.MonitorConfig
	log     *zap.Logger
	mon     *monitor.Monitor
	datalog *monitor.Datalog
	handler http.Handler

	closeOnce sync.Once
}

func newSource(cfg config.MonitorConfig) (monitor.Source, error) {
	switch cfg.Source {
	case "serial":
		return &monitor.SerialSource{Port: cfg.Port, Baud: cfg.Baud}, nil
	case "tcp":
		return &monitor.TCPSource{Addr: cfg.Addr}, nil
	case "replay":
		return &monitor.ReplaySource{Path: cfg.ReplayPath, Speed: cfg.ReplaySpeed}, nil
	}
	return nil, fmt.Errorf("unknown monitor source %q", cfg.Source)
}

func newApp(ctx context.Context, cfg config.MonitorConfig, log *zap.Logger, logBuf *web.LogBuffer) (*app, error) {
	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	var opts []monitor.Option
	if cfg.DatalogPath != "" {
		d, err := monitor.OpenDatalog(cfg.DatalogPath)
		if err != nil {
			return nil, err
		}
		a.datalog = d
		opts = append(opts, monitor.WithDatalog(d))
	}
	a.mon = monitor.New(src, monitor.NewStore(cfg.MaxPoints), log, opts...)
	if err := a.mon.Warm(ctx); err != nil {
		log.Warn("datalog warm-up failed", zap.Error(err))
	}

	status := web.NewStatus("cansat-monitor")
	status.SetSection("monitor", func() any { return a.mon.Stats() })
	if cfg.DatalogPath != "" {
		status.SetDataDir(filepath.Dir(cfg.DatalogPath))
	}
	if tcp, ok := src.(*monitor.TCPSource); ok {
		status.SetSection("tcp", func() any { return tcp.Snapshot() })
	}
	status.SetStatic("refresh_ms", cfg.Refresh.Milliseconds())
	a.handler = web.Handler(web.Options{
		Service: "cansat-monitor",
		Status:  status,
		Logs:    logBuf,
		Routes: map[string]http.Handler{
			"/api/series": a.mon.Store().SeriesHandler(),
			"/charts/":    charts.Handler(a.mon.Store(), cfg.Refresh),
		},
	})
	return a, nil
}

// run serves the dashboard API and reads the source until ctx is done or
// the source fails.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.Info("web listening", zap.String("addr", a.cfg.Listen))
		if err := web.Serve(ctx, a.cfg.Listen, a.handler); err != nil {
			a.log.Warn("web server stopped", zap.Error(err))
		}
	}()

	err := a.mon.Run(ctx)
	// The source may end on its own; the server must still stop.
	cancel()
	wg.Wait()
	return err
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.datalog != nil {
			if err := a.datalog.Close(); err != nil {
				a.log.Warn("datalog close failed", zap.Error(err))
			}
		}
	})
}
