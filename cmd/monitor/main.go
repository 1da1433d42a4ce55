package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/logging"
	"cansat-altimeter/internal/monitor"
	"cansat-altimeter/internal/web"
)

func main() {
	var configPath string
	var port string
	flag.StringVar(&configPath, "config", "./monitor.yaml", "Path to YAML config")
	flag.StringVar(&port, "port", "", "Serial port override (implies source=serial)")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		c, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			os.Exit(1)
		}
		cfg = c
	}
	if port != "" {
		cfg.Monitor.Source = "serial"
		cfg.Monitor.Port = port
	}

	logBuf := web.NewLogBuffer(cfg.Log.BufferLines)
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "cansat-monitor", logBuf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	bi := web.ReadBuildInfo()
	logger.Info("starting", zap.String("version", bi.Version), zap.String("commit", bi.Commit), zap.String("go", bi.GoVersion))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg.Monitor, logger, logBuf)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer app.close()

	if err := app.run(ctx); err != nil {
		var oe *monitor.OpenError
		if errors.As(err, &oe) {
			logger.Error("serial port unavailable",
				zap.String("port", oe.Port),
				zap.Strings("candidates", oe.Candidates),
				zap.Error(oe.Err))
		} else {
			logger.Error("monitor stopped", zap.Error(err))
		}
		app.close()
		os.Exit(1)
	}
}
