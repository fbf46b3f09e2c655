// Package monitoring - store.go persists route events to sqlite.
package monitoring

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const routeSchema = `
CREATE TABLE IF NOT EXISTS route_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT NOT NULL,
	ts            TEXT NOT NULL,
	path          TEXT NOT NULL,
	fingerprint   TEXT,
	route_target  TEXT,
	model         TEXT NOT NULL,
	provider      TEXT NOT NULL,
	streamed      INTEGER NOT NULL,
	status_code   INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	prompt_tokens INTEGER,
	latency_ms    INTEGER NOT NULL,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_route_events_fingerprint ON route_events(fingerprint);
CREATE INDEX IF NOT EXISTS idx_route_events_ts ON route_events(ts);
`

// RouteStore is an append-only sqlite log of routing decisions. It backs
// the recent-activity view on /stats and offline analysis of registry
// coverage.
type RouteStore struct {
	db *sql.DB
}

// OpenRouteStore opens (creating if needed) the route event database.
func OpenRouteStore(path string) (*RouteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create route store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open route store: %w", err)
	}
	// Single writer; the driver serializes access anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(routeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init route store schema: %w", err)
	}
	return &RouteStore{db: db}, nil
}

// Insert appends one route event.
func (s *RouteStore) Insert(event *RouteEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO route_events
			(request_id, ts, path, fingerprint, route_target, model, provider,
			 streamed, status_code, success, prompt_tokens, latency_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RequestID,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.Path,
		event.Fingerprint,
		event.RouteTarget,
		event.Model,
		event.Provider,
		boolInt(event.Streamed),
		event.StatusCode,
		boolInt(event.Success),
		event.PromptTokens,
		event.LatencyMs,
		event.Error,
	)
	return err
}

// Recent returns the newest n route events, newest first.
func (s *RouteStore) Recent(n int) ([]RouteEvent, error) {
	rows, err := s.db.Query(`
		SELECT request_id, ts, path, fingerprint, route_target, model, provider,
		       streamed, status_code, success, prompt_tokens, latency_ms, error
		FROM route_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []RouteEvent
	for rows.Next() {
		var ev RouteEvent
		var ts string
		var streamed, success int
		if err := rows.Scan(&ev.RequestID, &ts, &ev.Path, &ev.Fingerprint,
			&ev.RouteTarget, &ev.Model, &ev.Provider, &streamed,
			&ev.StatusCode, &success, &ev.PromptTokens, &ev.LatencyMs,
			&ev.Error); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Streamed = streamed != 0
		ev.Success = success != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByTarget returns per-target event counts for registry coverage checks.
func (s *RouteStore) CountByTarget() (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT route_target, COUNT(*) FROM route_events
		WHERE route_target != '' GROUP BY route_target`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var target string
		var count int64
		if err := rows.Scan(&target, &count); err != nil {
			return nil, err
		}
		counts[target] = count
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (s *RouteStore) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
