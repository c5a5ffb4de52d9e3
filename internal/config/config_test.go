// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
relying_party:
  id: example.com
  display_name: Example Corp
  origins:
    - https://example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "example.com", cfg.RelyingParty.ID)

	// Defaults fill in everything else.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Storage.Ephemeral.Backend)
	assert.Equal(t, "session", cfg.Session.CookieName)
	assert.Equal(t, 168*time.Hour, cfg.Session.TTL())
	assert.Equal(t, 5*time.Minute, cfg.Session.CleanupInterval())
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "/health", cfg.Health.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
relying_party:
  id: example.com
  display_name: Example Corp
  origins:
    - https://example.com
`)

	t.Setenv("PASSGATE_PORT", "9100")
	t.Setenv("PASSGATE_RP_ID", "override.example.com")
	t.Setenv("PASSGATE_RP_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("PASSGATE_REDIS_ADDR", "localhost:6379")
	t.Setenv("PASSGATE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "override.example.com", cfg.RelyingParty.ID)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.RelyingParty.Origins)
	assert.Equal(t, "redis", cfg.Storage.Ephemeral.Backend)
	assert.Equal(t, "localhost:6379", cfg.Storage.Ephemeral.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidEnvPortFallsBack(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
relying_party:
  id: example.com
  display_name: Example Corp
  origins: [https://example.com]
`)

	t.Setenv("PASSGATE_PORT", "not-a-port")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.TLS.Enabled = true },
			wantErr: "cert_file is required",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Storage.Backend = "sqlite" },
			wantErr: "storage path is required",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "invalid storage backend",
		},
		{
			name: "sqlite challenges on memory storage",
			mutate: func(c *Config) {
				c.Storage.Ephemeral.Backend = "sqlite"
			},
			wantErr: "sqlite challenge storage requires",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Storage.Ephemeral.Backend = "redis"
			},
			wantErr: "redis_addr is required",
		},
		{
			name:    "jwt without secret",
			mutate:  func(c *Config) { c.JWT.Enabled = true },
			wantErr: "jwt secret is required",
		},
		{
			name: "relying party ttl out of range",
			mutate: func(c *Config) {
				c.RelyingParty.ChallengeTTLSeconds = 10
			},
			wantErr: "invalid relying party config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSessionConfig_TTL(t *testing.T) {
	s := SessionConfig{TTLHours: 24}
	assert.Equal(t, 24*time.Hour, s.TTL())
}
