package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cansat-altimeter/internal/altimeter"
	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/logging"
	"cansat-altimeter/internal/replay"
	"cansat-altimeter/internal/web"
)

func main() {
	var configPath string
	var logSummary string
	flag.StringVar(&configPath, "config", "./altimeter.yaml", "Path to YAML config")
	flag.StringVar(&logSummary, "log-summary", "", "Print a summary of a recorded flight log and exit")
	flag.Parse()

	if logSummary != "" {
		if err := replay.PrintSummary(os.Stdout, logSummary); err != nil {
			fmt.Fprintf(os.Stderr, "log summary failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logBuf := web.NewLogBuffer(cfg.Log.BufferLines)
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "cansat-altimeter", logBuf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	bi := web.ReadBuildInfo()
	logger.Info("starting", zap.String("version", bi.Version), zap.String("commit", bi.Commit), zap.String("go", bi.GoVersion))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, configPath, logger, logBuf)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	err = rt.run(ctx)
	rt.close()
	if err != nil {
		// A halt has already been reported by the service.
		if rt.svc.State() != altimeter.StateHalted {
			logger.Error("altimeter stopped", zap.Error(err))
		}
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("altimeter stopped")
}
