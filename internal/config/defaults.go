// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the port the gateway listens on.
const DefaultPort = 4000

// DefaultHost is the bind address.
const DefaultHost = "0.0.0.0"

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 2 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// =============================================================================
// UPSTREAM
// =============================================================================

// DefaultUpstreamTimeout bounds an outbound call end to end.
// Generous because long generations can take minutes.
const DefaultUpstreamTimeout = 300 * time.Second

// DefaultDialTimeout is the TCP dial timeout.
const DefaultDialTimeout = 30 * time.Second

// DefaultBufferSize is the standard I/O buffer size for stream relaying.
const DefaultBufferSize = 4096

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// CREDENTIALS
// =============================================================================

// DefaultCredentialTTL governs how long loaded credentials are served from
// cache before the backing files are re-read.
const DefaultCredentialTTL = 60 * time.Second

// TokenExpiryBuffer is the safety margin before a token's expiresAt at which
// the cache forces a re-read from disk.
const TokenExpiryBuffer = 5 * time.Minute

// =============================================================================
// FILE PATHS
// =============================================================================

// DefaultRegistryPath is where the agent hash registry lives unless
// AGENT_REGISTRY_PATH overrides it.
const DefaultRegistryPath = "registry/agent_hashes.json"

// DefaultCredentialsPath holds the OAuth bearer token document.
const DefaultCredentialsPath = ".credentials.json"

// DefaultIdentityPath holds the user/account identity document maintained by
// the external credential rotation process.
const DefaultIdentityPath = ".claude.json"
