package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"cansat-altimeter/internal/altimeter"
	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/indicator"
	"cansat-altimeter/internal/mqtt"
	"cansat-altimeter/internal/replay"
	"cansat-altimeter/internal/sensors"
	"cansat-altimeter/internal/udp"
	"cansat-altimeter/internal/web"
)

type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	svc     *altimeter.Service
	devs    *devices
	metrics *altimeter.Metrics
	hub     *web.Hub
	handler http.Handler

	recorder *replay.Writer
	udp      *udp.Broadcaster
	mqtt     *mqtt.Publisher
	lamp     *indicator.Lamp
	console  io.Closer

	closeOnce sync.Once
}

// newRuntime wires sensors, sinks and the web API from cfg. Optional sinks
// that fail to start are logged and left out; the flight goes on without
// them.
func newRuntime(cfg config.Config, configPath string, log *zap.Logger, logBuf *web.LogBuffer) (*runtime, error) {
	devs, err := openDevices(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log, devs: devs, metrics: altimeter.NewMetrics(), hub: web.NewHub(log)}

	var sinks []altimeter.Sink
	switch cfg.Console.Output {
	case "none":
	case "stdout":
		sinks = append(sinks, altimeter.NewConsole(os.Stdout))
	default:
		f, err := os.OpenFile(cfg.Console.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("console output: %w", err)
		}
		rt.console = f
		sinks = append(sinks, altimeter.NewConsole(f))
	}

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			log.Warn("recorder disabled", zap.String("path", cfg.Record.Path), zap.Error(err))
		} else {
			rt.recorder = w
			sinks = append(sinks, w)
			log.Info("recording flight", zap.String("path", cfg.Record.Path))
		}
	}
	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			log.Warn("udp sink disabled", zap.String("dest", cfg.UDP.Dest), zap.Error(err))
		} else {
			rt.udp = b
			sinks = append(sinks, b)
		}
	}
	if cfg.MQTT.Enable {
		p, err := mqtt.Connect(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Retain:   cfg.MQTT.Retain,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  cfg.MQTT.Timeout,
		})
		if err != nil {
			log.Warn("mqtt sink disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			rt.mqtt = p
			sinks = append(sinks, p)
		}
	}
	sinks = append(sinks, rt.hub)

	opts := []altimeter.Option{altimeter.WithSinks(sinks...), altimeter.WithMetrics(rt.metrics)}
	if cfg.Indicator.Enable {
		lamp, err := indicator.Open(indicator.Config{
			Chip:      cfg.Indicator.Chip,
			Line:      cfg.Indicator.Line,
			ActiveLow: cfg.Indicator.ActiveLow,
		})
		if err != nil {
			log.Warn("indicator disabled", zap.Error(err))
		} else {
			rt.lamp = lamp
			opts = append(opts, altimeter.WithIndicator(lamp))
		}
	}

	svc, err := altimeter.New(altimeter.Config{
		Interval:           cfg.Altimeter.Interval,
		ReferenceAltitudeM: cfg.Altimeter.ReferenceAltitudeM,
		SmoothingFactor:    cfg.Altimeter.SmoothingFactor,
		AccelRange:         sensors.AccelRange(cfg.IMU.AccelRangeG),
		GyroRange:          sensors.GyroRange(cfg.IMU.GyroRangeDPS),
		Bandwidth:          sensors.Bandwidth(cfg.IMU.BandwidthHz),
	}, devs.baro, devs.imu, log, opts...)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.svc = svc

	status := web.NewStatus("cansat-altimeter")
	status.SetAltimeter(svc)
	if cfg.Record.Enable {
		status.SetDataDir(filepath.Dir(cfg.Record.Path))
	}
	status.SetStatic("config", map[string]any{
		"baro_backend": cfg.Baro.Backend,
		"imu_enabled":  cfg.IMU.Enable,
		"imu_backend":  cfg.IMU.Backend,
		"interval":     cfg.Altimeter.Interval.String(),
	})
	status.SetSection("sinks", rt.sinkStatus)
	rt.handler = web.Handler(web.Options{
		Service:  "cansat-altimeter",
		Status:   status,
		Settings: &web.SettingsStore{ConfigPath: configPath},
		Logs:     logBuf,
		Hub:      rt.hub,
		Metrics:  rt.metrics.Handler(),
	})
	return rt, nil
}

func (rt *runtime) sinkStatus() any {
	out := map[string]any{"stream_subscribers": rt.hub.Subscribers()}
	if rt.udp != nil {
		out["udp"] = map[string]any{"dest": rt.udp.Dest(), "sent": rt.udp.Sent()}
	}
	if rt.mqtt != nil {
		out["mqtt"] = map[string]any{"topic": rt.mqtt.Topic()}
	}
	if rt.recorder != nil {
		out["recorder"] = rt.cfg.Record.Path
	}
	if rt.devs.rig != nil {
		out["sim_elapsed"] = rt.devs.rig.Elapsed().String()
	}
	return out
}

// run calibrates and then samples until ctx is done. With the web API
// enabled a failed setup parks until ctx is done so the halted state can be
// inspected; the setup error is returned either way.
func (rt *runtime) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if rt.cfg.Web.Enable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.log.Info("web listening", zap.String("addr", rt.cfg.Web.Listen))
			if err := web.Serve(ctx, rt.cfg.Web.Listen, rt.handler); err != nil {
				rt.log.Warn("web server stopped", zap.Error(err))
			}
		}()
	}
	defer wg.Wait()

	if err := rt.svc.Setup(); err != nil {
		if rt.cfg.Web.Enable {
			<-ctx.Done()
		}
		return err
	}
	return rt.svc.Run(ctx)
}

func (rt *runtime) close() {
	rt.closeOnce.Do(func() {
		if rt.recorder != nil {
			if err := rt.recorder.Close(); err != nil {
				rt.log.Warn("recorder close failed", zap.Error(err))
			}
		}
		if rt.udp != nil {
			_ = rt.udp.Close()
		}
		if rt.mqtt != nil {
			rt.mqtt.Close()
		}
		if rt.lamp != nil {
			_ = rt.lamp.Close()
		}
		if rt.console != nil {
			_ = rt.console.Close()
		}
		rt.devs.close()
	})
}
