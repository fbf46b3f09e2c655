// claude-gateway is a fingerprint-routing credential-injection proxy for
// the Anthropic Messages API.
//
// It fingerprints each request's system prompt, maps the fingerprint
// through an agent registry to a model (or an alternate provider), injects
// OAuth credentials maintained by an external rotation process, and relays
// the upstream response.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fstlabs/claude-gateway/internal/config"
	"github.com/fstlabs/claude-gateway/internal/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gateway")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("gateway exited")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if config.DebugEnabled() {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// Console output for interactive use; JSON when piped to a collector.
	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
