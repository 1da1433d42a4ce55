package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cansat-altimeter/internal/config"
	"cansat-altimeter/internal/monitor"
	"cansat-altimeter/internal/replay"
	"cansat-altimeter/internal/telemetry"
	"cansat-altimeter/internal/web"
)

func recordFlight(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "flight.log")
	w, err := replay.CreateWriter(path)
	require.NoError(t, err)
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Emit(telemetry.Reading{
			Time:              t0.Add(time.Duration(i) * 10 * time.Millisecond),
			PressurePa:        101325 - float64(i),
			RawAltitudeM:      float64(i),
			FilteredAltitudeM: float64(i) / 2,
		}))
	}
	require.NoError(t, w.Close())
	return path
}

// runApp runs a until it returns on its own and fails the test if that takes
// longer than limit.
func runApp(t *testing.T, a *app, limit time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(limit):
		t.Fatalf("app did not return within %s", limit)
		return nil
	}
}

func TestApp_SerialOpenFailureReturns(t *testing.T) {
	cfg := config.Default().Monitor
	cfg.Source = "serial"
	cfg.Port = filepath.Join(t.TempDir(), "ttyACM9")
	cfg.Listen = "127.0.0.1:0"

	a, err := newApp(context.Background(), cfg, zap.NewNop(), web.NewLogBuffer(10))
	require.NoError(t, err)
	defer a.close()

	err = runApp(t, a, 3*time.Second)
	var oe *monitor.OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, cfg.Port, oe.Port)
}

func TestApp_ReplayFeedsSeriesAndDatalog(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Monitor
	cfg.Source = "replay"
	cfg.ReplayPath = recordFlight(t, dir)
	cfg.ReplaySpeed = 10
	cfg.DatalogPath = filepath.Join(dir, "monitor.db")
	cfg.Listen = "127.0.0.1:0"

	a, err := newApp(context.Background(), cfg, zap.NewNop(), web.NewLogBuffer(10))
	require.NoError(t, err)
	require.NoError(t, runApp(t, a, 5*time.Second))

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series?key=raw_altitude", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Series map[string][]struct {
			V float64 `json:"v"`
		} `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Series["raw_altitude"], 3)
	assert.Equal(t, 2.0, resp.Series["raw_altitude"][2].V)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/charts/altitude.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"monitor"`)
	a.close()

	// A restart warms the windows from the datalog.
	b, err := newApp(context.Background(), cfg, zap.NewNop(), web.NewLogBuffer(10))
	require.NoError(t, err)
	defer b.close()
	assert.Len(t, b.mon.Store().Series(telemetry.KeyPressure), 3)
}

func TestNewSource(t *testing.T) {
	cfg := config.Default().Monitor
	src, err := newSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, "serial:/dev/ttyACM3", src.Name())

	cfg.Source = "tcp"
	cfg.Addr = "pi.local:4000"
	src, err = newSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tcp:pi.local:4000", src.Name())

	cfg.Source = "usb"
	_, err = newSource(cfg)
	assert.Error(t, err)
}
