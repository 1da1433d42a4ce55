package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

// ReadBuildInfo collects the module version and VCS stamp embedded by
// the go tool.
func ReadBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.BuildTime = s.Value
		}
	}
	return out
}

type aboutResponse struct {
	Service string `json:"service"`
	NowUTC  string `json:"now_utc"`
	BuildInfo
}

func AboutHandler(service string) http.Handler {
	info := ReadBuildInfo()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		WriteJSON(w, aboutResponse{
			Service:   service,
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			BuildInfo: info,
		})
	})
}
