package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"avc-ng/internal/config"
)

// SettingsPayload is both the GET response and the strict POST schema.
// Every key is required on POST; there are no partial updates.
type SettingsPayload struct {
	MaxSpeed         *int     `json:"max_speed"`
	TurnGain         *float64 `json:"turn_gain"`
	ObstacleDistance *int     `json:"obstacle_distance"`
	EnableMotors     *bool    `json:"enable_motors"`
}

var settingsPostKeys = []string{
	"max_speed",
	"turn_gain",
	"obstacle_distance",
	"enable_motors",
}

func decodeSettingsPayloadStrict(body []byte) (SettingsPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	// First pass: enforce object shape, known keys, no duplicates, no nulls.
	allowed := make(map[string]struct{}, len(settingsPostKeys))
	for _, k := range settingsPostKeys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(settingsPostKeys))

	tok, err := dec.Token()
	if err != nil {
		return SettingsPayload{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return SettingsPayload{}, errors.New("invalid json: expected object")
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayload{}, fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return SettingsPayload{}, errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return SettingsPayload{}, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return SettingsPayload{}, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayload{}, fmt.Errorf("invalid json: %w", err)
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return SettingsPayload{}, fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return SettingsPayload{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok = end.(json.Delim)
	if !ok || delim != '}' {
		return SettingsPayload{}, errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayload{}, errors.New("invalid json: trailing data")
	}

	for _, k := range settingsPostKeys {
		if _, ok := seen[k]; !ok {
			return SettingsPayload{}, fmt.Errorf("invalid json: missing required key %q", k)
		}
	}

	// Second pass: typed decode.
	var out SettingsPayload
	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(&out); err != nil {
		return SettingsPayload{}, fmt.Errorf("invalid json: %w", err)
	}
	return out, nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	t := config.TuningOf(cfg)
	return SettingsPayload{
		MaxSpeed:         t.MaxSpeed,
		TurnGain:         t.TurnGain,
		ObstacleDistance: t.ObstacleDistance,
		EnableMotors:     t.EnableMotors,
	}
}

// SettingsStore edits the tuning values in the YAML config. Changes take
// effect on the next run; the current run keeps the settings it started with.
type SettingsStore struct {
	ConfigPath string
	// Saved, when set, is called with the new config after it is on disk.
	Saved func(cfg config.Config)
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
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			p, err := decodeSettingsPayloadStrict(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			cfg, err := config.UpdateTuning(s.ConfigPath, config.Tuning{
				MaxSpeed:         p.MaxSpeed,
				TurnGain:         p.TurnGain,
				ObstacleDistance: p.ObstacleDistance,
				EnableMotors:     p.EnableMotors,
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
				return
			}
			if s.Saved != nil {
				s.Saved(cfg)
			}
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
