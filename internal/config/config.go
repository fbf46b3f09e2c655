// Package config loads gateway configuration.
//
// DESIGN: Configuration comes from an optional YAML file plus environment
// variable overrides. Environment always wins so container deployments can
// reconfigure without editing files. Missing config file is not an error;
// everything has a default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Registry    RegistryConfig    `yaml:"registry"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Routing     RoutingConfig     `yaml:"routing"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RegistryConfig points at the agent hash registry document.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig points at the credential backing stores.
type CredentialsConfig struct {
	TokenPath    string        `yaml:"token_path"`
	IdentityPath string        `yaml:"identity_path"`
	TTL          time.Duration `yaml:"ttl"`
}

// RoutingConfig holds upstream endpoints and the alternate provider key.
// Alias tables have compiled-in defaults; Aliases/AlternateAliases entries
// extend or override them.
type RoutingConfig struct {
	AnthropicBaseURL string            `yaml:"anthropic_base_url"`
	AlternateBaseURL string            `yaml:"alternate_base_url"`
	AlternateAPIKey  string            `yaml:"alternate_api_key"`
	UpstreamTimeout  time.Duration     `yaml:"upstream_timeout"`
	Aliases          map[string]string `yaml:"aliases"`
	AlternateAliases map[string]string `yaml:"alternate_aliases"`
}

// MonitoringConfig controls telemetry outputs.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	RouteDBPath string `yaml:"route_db_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
	CountTokens bool   `yaml:"count_tokens"`
}

// Default returns a config populated with defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Registry: RegistryConfig{
			Path: DefaultRegistryPath,
		},
		Credentials: CredentialsConfig{
			TokenPath:    DefaultCredentialsPath,
			IdentityPath: DefaultIdentityPath,
			TTL:          DefaultCredentialTTL,
		},
		Routing: RoutingConfig{
			UpstreamTimeout: DefaultUpstreamTimeout,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			LogToStdout: true,
		},
	}
}

// Load reads the YAML config at path (if it exists) and applies environment
// overrides. A missing file falls back to defaults; a malformed file is an
// error since a present config is operator intent.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.fillZeros()
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("PROXY_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PROXY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AGENT_REGISTRY_PATH"); v != "" {
		c.Registry.Path = v
	}
	if v := os.Getenv("CLAUDE_CREDENTIALS_PATH"); v != "" {
		c.Credentials.TokenPath = v
	}
	if v := os.Getenv("CLAUDE_CONFIG_PATH"); v != "" {
		c.Credentials.IdentityPath = v
	}
	if v := os.Getenv("ZAI_API_KEY"); v != "" {
		c.Routing.AlternateAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		c.Routing.AnthropicBaseURL = v
	}
	if v := os.Getenv("ZAI_BASE_URL"); v != "" {
		c.Routing.AlternateBaseURL = v
	}
	if v := os.Getenv("TELEMETRY_LOG_PATH"); v != "" {
		c.Monitoring.LogPath = v
	}
	if v := os.Getenv("ROUTE_DB_PATH"); v != "" {
		c.Monitoring.RouteDBPath = v
	}
}

// fillZeros backfills zero values left by a partial YAML document.
func (c *Config) fillZeros() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Registry.Path == "" {
		c.Registry.Path = DefaultRegistryPath
	}
	if c.Credentials.TokenPath == "" {
		c.Credentials.TokenPath = DefaultCredentialsPath
	}
	if c.Credentials.IdentityPath == "" {
		c.Credentials.IdentityPath = DefaultIdentityPath
	}
	if c.Credentials.TTL == 0 {
		c.Credentials.TTL = DefaultCredentialTTL
	}
	if c.Routing.UpstreamTimeout == 0 {
		c.Routing.UpstreamTimeout = DefaultUpstreamTimeout
	}
}

// DebugEnabled reports whether verbose logging was requested via env.
func DebugEnabled() bool {
	switch os.Getenv("DEBUG") {
	case "1", "true", "yes":
		return true
	}
	return false
}
