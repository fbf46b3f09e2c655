// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   Total and successful request counts
//   - registry hits/misses: Fingerprint lookup performance
//   - alternate/downgrades: Alternate-provider routing activity
//   - credential activity:  Cache refreshes and explicit invalidations
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64
	streamed  atomic.Int64

	// Routing counters
	registryHits    atomic.Int64
	registryMisses  atomic.Int64
	alternateRoutes atomic.Int64
	downgrades      atomic.Int64

	// Credential counters
	credentialRefreshes    atomic.Int64
	credentialInvalidation atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordRequest records a request.
func (mc *MetricsCollector) RecordRequest(success, streamed bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
	if streamed {
		mc.streamed.Add(1)
	}
}

// RecordRegistryHit records a fingerprint match.
func (mc *MetricsCollector) RecordRegistryHit() { mc.registryHits.Add(1) }

// RecordRegistryMiss records a fingerprint lookup that fell through.
func (mc *MetricsCollector) RecordRegistryMiss() { mc.registryMisses.Add(1) }

// RecordAlternateRoute records a request routed to the alternate provider.
func (mc *MetricsCollector) RecordAlternateRoute() { mc.alternateRoutes.Add(1) }

// RecordDowngrade records an alternate target served by the primary provider.
func (mc *MetricsCollector) RecordDowngrade() { mc.downgrades.Add(1) }

// RecordCredentialRefresh records a credential reload from source.
func (mc *MetricsCollector) RecordCredentialRefresh() { mc.credentialRefreshes.Add(1) }

// RecordCredentialInvalidation records an explicit cache invalidation.
func (mc *MetricsCollector) RecordCredentialInvalidation() { mc.credentialInvalidation.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()
	hits := mc.registryHits.Load()
	misses := mc.registryMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
			Streamed:   mc.streamed.Load(),
		},
		Routing: RoutingStats{
			RegistryHits:    hits,
			RegistryMisses:  misses,
			HitRate:         hitRate,
			AlternateRoutes: mc.alternateRoutes.Load(),
			Downgrades:      mc.downgrades.Load(),
		},
		Credentials: CredentialStats{
			Refreshes:     mc.credentialRefreshes.Load(),
			Invalidations: mc.credentialInvalidation.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartedAt     string          `json:"started_at"`
	Requests      RequestStats    `json:"requests"`
	Routing       RoutingStats    `json:"routing"`
	Credentials   CredentialStats `json:"credentials"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Streamed   int64 `json:"streamed"`
}

// RoutingStats holds fingerprint routing metrics.
type RoutingStats struct {
	RegistryHits    int64   `json:"registry_hits"`
	RegistryMisses  int64   `json:"registry_misses"`
	HitRate         float64 `json:"hit_rate"`
	AlternateRoutes int64   `json:"alternate_routes"`
	Downgrades      int64   `json:"downgrades"`
}

// CredentialStats holds credential cache metrics.
type CredentialStats struct {
	Refreshes     int64 `json:"refreshes"`
	Invalidations int64 `json:"invalidations"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
