// Package charts renders the monitor's rolling windows as PNG line charts.
package charts

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"cansat-altimeter/internal/monitor"
	"cansat-altimeter/internal/telemetry"
)

const (
	Pressure = "pressure"
	Altitude = "altitude"
	MPUTemp  = "mpu_temp"
	Overlay  = "overlay"
)

// Names lists the charts Render knows about.
var Names = []string{Pressure, Altitude, MPUTemp, Overlay}

var (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch
)

type line struct {
	label string
	pts   []monitor.Point
}

// overlayKeys are the series drawn on the normalised chart.
var overlayKeys = []telemetry.Key{telemetry.KeyPressure, telemetry.KeyFilteredAltitude, telemetry.KeyMPUTemp}

// Render writes the named chart as PNG.
func Render(w io.Writer, name string, series map[telemetry.Key][]monitor.Point) error {
	p := plot.New()
	p.X.Label.Text = "Time (s)"
	p.Add(plotter.NewGrid())

	lines, err := chartLines(p, name, series)
	if err != nil {
		return err
	}

	origin := earliest(lines)
	var args []interface{}
	for _, l := range lines {
		if len(l.pts) == 0 {
			continue
		}
		args = append(args, l.label, toXYs(l.pts, origin))
	}
	if len(args) == 0 {
		p.Title.Text += " (no data)"
	} else if err := plotutil.AddLinePoints(p, args...); err != nil {
		return fmt.Errorf("charts: %s: %w", name, err)
	}
	p.Legend.Top = true
	p.BackgroundColor = color.White

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("charts: %s: %w", name, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// chartLines labels p for the named chart and picks its series.
func chartLines(p *plot.Plot, name string, series map[telemetry.Key][]monitor.Point) ([]line, error) {
	switch name {
	case Pressure:
		p.Title.Text = "Pressure"
		p.Y.Label.Text = "Pa"
		return []line{{"pressure", series[telemetry.KeyPressure]}}, nil
	case Altitude:
		p.Title.Text = "Altitude"
		p.Y.Label.Text = "m"
		return []line{
			{"raw", series[telemetry.KeyRawAltitude]},
			{"filtered", series[telemetry.KeyFilteredAltitude]},
		}, nil
	case MPUTemp:
		p.Title.Text = "MPU temperature"
		p.Y.Label.Text = "°C"
		return []line{{"mpu temp", series[telemetry.KeyMPUTemp]}}, nil
	case Overlay:
		p.Title.Text = "Normalised"
		p.Y.Label.Text = "0..1"
		lines := make([]line, 0, len(overlayKeys))
		for _, k := range overlayKeys {
			lines = append(lines, line{string(k), Normalize(series[k])})
		}
		return lines, nil
	}
	return nil, fmt.Errorf("charts: unknown chart %q", name)
}

// Normalize maps pts onto [0,1] by min-max scaling. A flat series maps to 0.
func Normalize(pts []monitor.Point) []monitor.Point {
	if len(pts) == 0 {
		return nil
	}
	lo, hi := pts[0].V, pts[0].V
	for _, p := range pts[1:] {
		lo = min(lo, p.V)
		hi = max(hi, p.V)
	}
	span := hi - lo
	out := make([]monitor.Point, len(pts))
	for i, p := range pts {
		out[i].T = p.T
		if span != 0 {
			out[i].V = (p.V - lo) / span
		}
	}
	return out
}

func earliest(lines []line) time.Time {
	var t time.Time
	for _, l := range lines {
		if len(l.pts) > 0 && (t.IsZero() || l.pts[0].T.Before(t)) {
			t = l.pts[0].T
		}
	}
	return t
}

func toXYs(pts []monitor.Point, origin time.Time) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i].X = p.T.Sub(origin).Seconds()
		xys[i].Y = p.V
	}
	return xys
}

// Handler serves /charts/{name}.png from store. A positive refresh is sent
// as a Refresh header so a browser showing the chart reloads it.
func Handler(store *monitor.Store, refresh time.Duration) http.Handler {
	var refreshHdr string
	if refresh > 0 {
		refreshHdr = strconv.Itoa(int(max(math.Ceil(refresh.Seconds()), 1)))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		name, ok := strings.CutSuffix(file, ".png")
		if !ok {
			http.NotFound(w, r)
			return
		}
		var buf bytes.Buffer
		if err := Render(&buf, name, store.All()); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if refreshHdr != "" {
			w.Header().Set("Refresh", refreshHdr)
		}
		_, _ = w.Write(buf.Bytes())
	})
}
