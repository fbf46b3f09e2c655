// Package monitoring - telemetry.go records events to a JSONL file.
//
// DESIGN: Tracker writes one JSON object per line, appended immediately
// after each event for real-time tailing. The optional sqlite route store
// (store.go) receives the same events for queryable history.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config     TelemetryConfig
	logPath    string
	store      *RouteStore
	eventCount int
	mu         sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o750); err != nil {
			return nil, err
		}
		t.logPath = cfg.LogPath
	}

	if cfg.RouteDBPath != "" {
		store, err := OpenRouteStore(cfg.RouteDBPath)
		if err != nil {
			// The store is best-effort history; keep the gateway up.
			log.Error().Err(err).Str("path", cfg.RouteDBPath).Msg("telemetry: route store unavailable")
		} else {
			t.store = store
		}
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// RecordRoute records a routed request event.
func (t *Tracker) RecordRoute(event *RouteEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("fingerprint", event.Fingerprint).
			Str("model", event.Model).
			Str("provider", event.Provider).
			Int("status", event.StatusCode).
			Int64("latency_ms", event.LatencyMs).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write route event")
		} else {
			t.eventCount++
		}
	}

	if t.store != nil {
		if err := t.store.Insert(event); err != nil {
			log.Error().Err(err).Msg("telemetry: failed to insert route event")
		}
	}
}

// Store returns the sqlite route store, or nil when disabled.
func (t *Tracker) Store() *RouteStore { return t.store }

// Close flushes and releases resources.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.eventCount > 0 {
		log.Info().Str("path", t.logPath).Int("events", t.eventCount).Msg("telemetry: session complete")
	}
	if t.store != nil {
		return t.store.Close()
	}
	return nil
}
