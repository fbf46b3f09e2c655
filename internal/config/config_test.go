package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultRegistryPath, cfg.Registry.Path)
	assert.Equal(t, DefaultCredentialTTL, cfg.Credentials.TTL)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.Routing.UpstreamTimeout)
}

func TestLoad_YAMLOverridesAndZeroBackfill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	doc := `
server:
  port: 9000
registry:
  path: /data/hashes.json
credentials:
  ttl: 30s
routing:
  alternate_api_key: zai-secret
  aliases:
    sonnet: claude-sonnet-custom
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data/hashes.json", cfg.Registry.Path)
	assert.Equal(t, 30*time.Second, cfg.Credentials.TTL)
	assert.Equal(t, "zai-secret", cfg.Routing.AlternateAPIKey)
	assert.Equal(t, "claude-sonnet-custom", cfg.Routing.Aliases["sonnet"])

	// Unset fields keep defaults.
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultCredentialsPath, cfg.Credentials.TokenPath)
}

func TestLoad_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	t.Setenv("PROXY_PORT", "5005")
	t.Setenv("ZAI_API_KEY", "env-key")
	t.Setenv("AGENT_REGISTRY_PATH", "/env/hashes.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5005, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Routing.AlternateAPIKey)
	assert.Equal(t, "/env/hashes.json", cfg.Registry.Path)
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv("DEBUG", "")
	assert.False(t, DebugEnabled())
	t.Setenv("DEBUG", "1")
	assert.True(t, DebugEnabled())
	t.Setenv("DEBUG", "true")
	assert.True(t, DebugEnabled())
	t.Setenv("DEBUG", "no")
	assert.False(t, DebugEnabled())
}
