// Package web serves the HTTP API shared by the altimeter and the ground
// monitor: status, logs, settings, metrics and the live reading stream.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"time"
)

type Options struct {
	Service string
	Status  *Status

	// Optional parts; nil leaves the route out.
	Settings *SettingsStore
	Logs     *LogBuffer
	Hub      *Hub
	Metrics  http.Handler

	// Routes adds extra handlers by ServeMux pattern.
	Routes map[string]http.Handler
}

func Handler(opts Options) http.Handler {
	if opts.Status == nil {
		opts.Status = NewStatus(opts.Service)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		WriteJSON(w, opts.Status.Snapshot(time.Now().UTC()))
	})

	if opts.Settings != nil {
		mux.Handle("/api/settings", opts.Settings.Handler())
	}
	if opts.Logs != nil {
		mux.Handle("/api/logs", opts.Logs.Handler())
	}
	if opts.Hub != nil {
		mux.Handle("/api/stream", opts.Hub.Handler())
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	mux.Handle("/api/about", AboutHandler(opts.Service))

	routes := make([]string, 0, len(opts.Routes))
	for pattern, h := range opts.Routes {
		mux.Handle(pattern, h)
		routes = append(routes, pattern)
	}
	sort.Strings(routes)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		name := html.EscapeString(opts.Service)
		fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>", name)
		fmt.Fprintf(w, "<h1>%s</h1><ul>", name)
		fmt.Fprintf(w, "<li><a href=\"/api/status\">/api/status</a></li>")
		for _, p := range routes {
			fmt.Fprintf(w, "<li><a href=\"%s\">%s</a></li>", html.EscapeString(p), html.EscapeString(p))
		}
		fmt.Fprintf(w, "</ul>")
		if snap := opts.Status.Snapshot(time.Now().UTC()); snap.Altimeter != nil && snap.Altimeter.Last != nil {
			last := snap.Altimeter.Last
			fmt.Fprintf(w, "<pre>state=%s\nfiltered_altitude_m=%.2f\nmax_altitude_m=%.2f\ncycles=%d</pre>",
				snap.Altimeter.State, last.FilteredAltitudeM, snap.Altimeter.MaxAltitudeM, snap.Altimeter.Cycles)
		}
		fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

// WriteJSON writes v indented with a trailing newline.
func WriteJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs h on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
