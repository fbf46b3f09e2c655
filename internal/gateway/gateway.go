// Package gateway relays chat requests to the upstream LLM API with
// fingerprint-based routing and credential injection.
//
// DESIGN: Request flow:
//   - handleMessages():  Entry point for /v1/messages
//   - routing.Resolver:  Fingerprint lookup -> upstream/model decision
//   - normalize.go:      Reference-client header and body rewrite
//   - relay.go:          Buffered or SSE relay of the upstream response
//
// Also includes credential invalidation, registry reload, health, and
// stats endpoints.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fstlabs/claude-gateway/internal/config"
	"github.com/fstlabs/claude-gateway/internal/credentials"
	"github.com/fstlabs/claude-gateway/internal/monitoring"
	"github.com/fstlabs/claude-gateway/internal/registry"
	"github.com/fstlabs/claude-gateway/internal/routing"
)

// Gateway is the fingerprint-routing credential-injection proxy.
type Gateway struct {
	cfg      *config.Config
	registry *registry.Registry
	creds    *credentials.Cache
	resolver *routing.Resolver
	metrics  *monitoring.MetricsCollector
	tracker  *monitoring.Tracker
	client   *http.Client

	// sessionID is a process-lifetime token composed into metadata.user_id,
	// mirroring how the reference client scopes a session.
	sessionID string

	server *http.Server
}

// New creates a gateway from configuration. The registry is loaded eagerly
// so startup surfaces a bad registry path immediately.
func New(cfg *config.Config) (*Gateway, error) {
	reg := registry.New(cfg.Registry.Path)
	reg.Load()

	creds := credentials.NewCache(
		cfg.Credentials.TokenPath,
		cfg.Credentials.IdentityPath,
		cfg.Credentials.TTL,
	)

	resolver := routing.NewResolver(reg, routing.Options{
		AnthropicBaseURL: cfg.Routing.AnthropicBaseURL,
		AlternateBaseURL: cfg.Routing.AlternateBaseURL,
		AlternateAPIKey:  cfg.Routing.AlternateAPIKey,
		Aliases:          cfg.Routing.Aliases,
		AlternateAliases: cfg.Routing.AlternateAliases,
	})

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		RouteDBPath: cfg.Monitoring.RouteDBPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
		CountTokens: cfg.Monitoring.CountTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics := monitoring.NewMetricsCollector()
	creds.OnReload(metrics.RecordCredentialRefresh)

	g := &Gateway{
		cfg:      cfg,
		registry: reg,
		creds:    creds,
		resolver: resolver,
		metrics:  metrics,
		tracker:  tracker,
		client: &http.Client{
			Timeout: cfg.Routing.UpstreamTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: config.DefaultDialTimeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sessionID: uuid.New().String()[:8],
	}
	return g, nil
}

// Handler returns the gateway's route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", g.handleMessages)
	mux.HandleFunc("/api/oauth-completion", g.handleMessages)
	mux.HandleFunc("/api/invalidate-credentials", g.handleInvalidateCredentials)
	mux.HandleFunc("/api/reload-registry", g.handleReloadRegistry)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	return g.recoverPanics(mux)
}

// recoverPanics turns a handler panic into a structured 500 instead of a
// dropped connection. The error detail stays in the log, not the response.
func (g *Gateway) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("gateway: handler panic")
				g.writeError(w, "internal error", "internal_error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server. Blocks until Shutdown or a listen error.
func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.cfg.Server.Host, g.cfg.Server.Port)
	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}

	log.Info().
		Str("addr", addr).
		Int("registry_entries", g.registry.Len()).
		Bool("alternate_provider", g.cfg.Routing.AlternateAPIKey != "").
		Msg("gateway: listening")

	err := g.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and flushes telemetry.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var err error
	if g.server != nil {
		err = g.server.Shutdown(ctx)
	}
	if closeErr := g.tracker.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
