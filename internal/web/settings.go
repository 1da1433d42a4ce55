package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cansat-altimeter/internal/config"
)

// SettingsPayload is the tunable part of the altimeter configuration.
// Changes are saved to the config file and take effect on the next start:
// calibration and the filter coefficient are fixed once the loop runs.
type SettingsPayload struct {
	Interval           string  `json:"interval"`
	ReferenceAltitudeM float64 `json:"reference_altitude_m"`
	SmoothingFactor    float64 `json:"smoothing_factor"`
}

func settingsFromConfig(cfg config.Config) SettingsPayload {
	return SettingsPayload{
		Interval:           cfg.Altimeter.Interval.String(),
		ReferenceAltitudeM: cfg.Altimeter.ReferenceAltitudeM,
		SmoothingFactor:    cfg.Altimeter.SmoothingFactor,
	}
}

// decodeSettings reads exactly one JSON object carrying every settings key
// once, with no nulls and nothing else.
func decodeSettings(r io.Reader) (SettingsPayload, error) {
	var p SettingsPayload
	targets := map[string]any{
		"interval":             &p.Interval,
		"reference_altitude_m": &p.ReferenceAltitudeM,
		"smoothing_factor":     &p.SmoothingFactor,
	}
	seen := make(map[string]bool, len(targets))

	dec := json.NewDecoder(r)
	if tok, err := dec.Token(); err != nil {
		return p, fmt.Errorf("invalid json: %w", err)
	} else if tok != json.Delim('{') {
		return p, errors.New("invalid json: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return p, fmt.Errorf("invalid json: %w", err)
		}
		key, _ := tok.(string)
		dst, ok := targets[key]
		if !ok {
			return p, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if seen[key] {
			return p, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return p, fmt.Errorf("invalid json: %w", err)
		}
		if string(raw) == "null" {
			return p, fmt.Errorf("invalid json: %q cannot be null", key)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return p, fmt.Errorf("invalid json: %q: %w", key, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return p, fmt.Errorf("invalid json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return p, errors.New("invalid json: trailing data")
	}
	for key := range targets {
		if !seen[key] {
			return p, fmt.Errorf("invalid json: missing required key %q", key)
		}
	}
	return p, nil
}

func (p SettingsPayload) applyTo(cfg *config.Config) error {
	d, err := time.ParseDuration(strings.TrimSpace(p.Interval))
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", p.Interval, err)
	}
	if d <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if a := p.SmoothingFactor; !(a > 0 && a < 1) {
		return fmt.Errorf("smoothing_factor must be in (0,1)")
	}
	cfg.Altimeter.Interval = d
	cfg.Altimeter.ReferenceAltitudeM = p.ReferenceAltitudeM
	cfg.Altimeter.SmoothingFactor = p.SmoothingFactor
	return config.DefaultAndValidate(cfg)
}

// SettingsStore serves GET/POST of SettingsPayload backed by the YAML file
// at ConfigPath.
type SettingsStore struct {
	ConfigPath string
	// Apply, when set, sees the validated config before it is saved. An
	// error rejects the request and nothing is written.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) save(cfg config.Config) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.ConfigPath, b, 0o644)
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, b []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}
		switch r.Method {
		case http.MethodGet:
			cfg, err := config.Load(s.ConfigPath)
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			WriteJSON(w, settingsFromConfig(cfg))
		case http.MethodPost:
			s.post(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (s SettingsStore) post(w http.ResponseWriter, r *http.Request) {
	if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	p, err := decodeSettings(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
		return
	}
	if err := p.applyTo(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
		return
	}
	if s.Apply != nil {
		if err := s.Apply(cfg); err != nil {
			http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
			return
		}
	}
	if err := s.save(cfg); err != nil {
		http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
		return
	}
	WriteJSON(w, settingsFromConfig(cfg))
}
