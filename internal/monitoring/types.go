package monitoring

import "time"

// TelemetryConfig controls event recording.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string // JSONL route event log; empty disables file output
	RouteDBPath string // sqlite route log; empty disables the store
	LogToStdout bool
	CountTokens bool // estimate prompt tokens per request (tiktoken)
}

// RouteEvent records one routed request.
type RouteEvent struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"path"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	RouteTarget  string    `json:"route_target,omitempty"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Streamed     bool      `json:"streamed"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	PromptTokens int       `json:"prompt_tokens,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	Error        string    `json:"error,omitempty"`
}
