// HTTP request handling for the routing gateway.
package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fstlabs/claude-gateway/internal/config"
	"github.com/fstlabs/claude-gateway/internal/monitoring"
	"github.com/fstlabs/claude-gateway/internal/routing"
	"github.com/fstlabs/claude-gateway/internal/utils"
)

// handleMessages is the entry point for chat completion requests.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", "invalid_request_error", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	requestID := g.getRequestID(r)

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeError(w, "failed to read request", "invalid_request_error", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		g.writeError(w, "request body is not valid JSON", "invalid_request_error", http.StatusBadRequest)
		return
	}

	decision := g.resolver.Resolve(body)
	g.recordRoutingMetrics(decision.RouteTarget, decision.Alternate())

	streaming := gjson.GetBytes(body, "stream").Bool()

	event := &monitoring.RouteEvent{
		RequestID:   requestID,
		Timestamp:   startTime,
		Path:        r.URL.Path,
		Fingerprint: decision.Fingerprint,
		RouteTarget: decision.RouteTarget,
		Model:       decision.Model,
		Provider:    providerName(decision.Alternate()),
		Streamed:    streaming,
	}
	if g.cfg.Monitoring.CountTokens {
		event.PromptTokens = monitoring.EstimateTokens(body)
	}

	var headers http.Header
	outBody, _ := sjson.SetBytes(body, "model", decision.Model)

	if decision.UseOAuth {
		cred, ok := g.creds.Get(false)
		if !ok {
			log.Warn().Str("request_id", requestID).Msg("gateway: no credential available")
			g.writeError(w, "OAuth token not available. Run account sync first.",
				"authentication_error", http.StatusUnauthorized)
			g.finishRequest(event, relayResult{
				StatusCode: http.StatusUnauthorized,
				ErrorMsg:   "credential unavailable",
			}, startTime)
			return
		}
		headers = PrimaryHeaders(r.Header, cred.AccessToken)
		outBody = NormalizeBody(outBody, cred, g.sessionID)
		log.Debug().
			Str("request_id", requestID).
			Str("token", utils.MaskKey(cred.AccessToken)).
			Str("model", decision.Model).
			Msg("gateway: primary route")
	} else {
		headers = AlternateHeaders(decision.APIKey)
		log.Info().
			Str("request_id", requestID).
			Str("model", decision.Model).
			Str("target", decision.RouteTarget).
			Msg("gateway: alternate route")
	}

	var result relayResult
	if streaming {
		result = g.relayStream(r.Context(), w, decision.URL(), outBody, headers)
	} else {
		result = g.relayBuffered(r.Context(), w, decision.URL(), outBody, headers)
	}
	g.finishRequest(event, result, startTime)
}

// finishRequest records metrics and telemetry for a completed request.
func (g *Gateway) finishRequest(event *monitoring.RouteEvent, result relayResult, startTime time.Time) {
	g.metrics.RecordRequest(result.Success, event.Streamed)

	event.StatusCode = result.StatusCode
	event.Success = result.Success
	event.Error = utils.TruncateForLog(result.ErrorMsg, config.MaxErrorBodyLogLen)
	event.LatencyMs = time.Since(startTime).Milliseconds()
	g.tracker.RecordRoute(event)
}

// recordRoutingMetrics folds a decision into the counters.
func (g *Gateway) recordRoutingMetrics(target string, alternate bool) {
	if target == "" {
		g.metrics.RecordRegistryMiss()
		return
	}
	g.metrics.RecordRegistryHit()
	if alternate {
		g.metrics.RecordAlternateRoute()
	} else if strings.HasPrefix(target, routing.AlternatePrefix) {
		// Alternate target served on the primary path: key missing.
		g.metrics.RecordDowngrade()
	}
}

// handleInvalidateCredentials drops the cached credential so the next
// request re-reads the backing store. Called by the external rotation
// mechanism after it syncs new credentials.
func (g *Gateway) handleInvalidateCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", "invalid_request_error", http.StatusMethodNotAllowed)
		return
	}

	g.creds.Invalidate()
	g.metrics.RecordCredentialInvalidation()
	log.Info().Msg("gateway: credential cache invalidated")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Credential cache invalidated",
	})
}

// handleReloadRegistry re-reads the agent registry from disk.
func (g *Gateway) handleReloadRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", "invalid_request_error", http.StatusMethodNotAllowed)
		return
	}

	g.registry.Reload()
	entries := g.registry.Len()
	log.Info().Int("entries", entries).Msg("gateway: registry reloaded")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"entries": entries,
	})
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, hasCredential := g.creds.Get(false)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":           "ok",
		"time":             time.Now().Format(time.RFC3339),
		"registry_entries": g.registry.Len(),
		"credential":       hasCredential,
	})
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	resp := struct {
		monitoring.StatsResponse
		RecentRoutes []monitoring.RouteEvent `json:"recent_routes,omitempty"`
	}{StatsResponse: g.metrics.FullStats()}

	if store := g.tracker.Store(); store != nil {
		if recent, err := store.Recent(20); err == nil {
			resp.RecentRoutes = recent
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON error response in the upstream's error shape.
func (g *Gateway) writeError(w http.ResponseWriter, msg, errType string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": msg, "type": errType},
	})
}

// getRequestID gets or generates a request ID.
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func providerName(alternate bool) string {
	if alternate {
		return "zai"
	}
	return "anthropic"
}

// isLoopback reports whether the remote address is a loopback interface.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
