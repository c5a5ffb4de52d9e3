// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package config loads and validates the passgate server configuration from
// a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptofolio/passgate/pkg/ceremony"
)

// Config represents the complete server configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	TLS          TLSConfig          `yaml:"tls"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Session      SessionConfig      `yaml:"session"`
	Storage      StorageConfig      `yaml:"storage"`
	JWT          JWTConfig          `yaml:"jwt"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Health       HealthConfig       `yaml:"health"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound request handling.
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Defaults to the relying party origins.
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TLSConfig controls TLS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RelyingPartyConfig identifies this deployment to authenticators.
type RelyingPartyConfig struct {
	ID                      string   `yaml:"id"`
	DisplayName             string   `yaml:"display_name"`
	Origins                 []string `yaml:"origins"`
	ChallengeTTLSeconds     int      `yaml:"challenge_ttl_seconds"`
	UserVerification        string   `yaml:"user_verification"`
	Attestation             string   `yaml:"attestation"`
	ResidentKey             string   `yaml:"resident_key"`
	AuthenticatorAttachment string   `yaml:"authenticator_attachment"`
}

// ToCeremonyConfig converts the relying party section into the ceremony
// engine's configuration.
func (r RelyingPartyConfig) ToCeremonyConfig(debug bool) *ceremony.Config {
	return &ceremony.Config{
		RPID:                    r.ID,
		RPDisplayName:           r.DisplayName,
		RPOrigins:               r.Origins,
		ChallengeTTL:            time.Duration(r.ChallengeTTLSeconds) * time.Second,
		UserVerification:        r.UserVerification,
		AttestationPreference:   r.Attestation,
		ResidentKeyRequirement:  r.ResidentKey,
		AuthenticatorAttachment: r.AuthenticatorAttachment,
		Debug:                   debug,
	}
}

// SessionConfig controls login sessions and their cookie.
type SessionConfig struct {
	TTLHours               int    `yaml:"ttl_hours"`
	CookieName             string `yaml:"cookie_name"`
	CookieSecure           bool   `yaml:"cookie_secure"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// CleanupInterval returns how often expired state is swept.
func (s SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalMinutes) * time.Minute
}

// StorageConfig selects the durable and ephemeral backends.
type StorageConfig struct {
	// Backend is the durable store for users, credentials, and sessions.
	// Options: "memory", "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path"`

	// Ephemeral is the store for pending challenges.
	Ephemeral EphemeralConfig `yaml:"ephemeral"`
}

// EphemeralConfig selects where pending challenges live. The redis backend
// also hosts login sessions so multiple instances share them.
type EphemeralConfig struct {
	// Backend options: "memory", "redis", or "" to follow the durable
	// backend (sqlite keeps challenges in the database, memory in memory).
	Backend string `yaml:"backend"`

	// Redis connection settings, used when Backend is "redis".
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// JWTConfig controls the optional bearer-token issuer.
type JWTConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Secret           string `yaml:"secret"`
	Issuer           string `yaml:"issuer"`
	ExpiresInMinutes int    `yaml:"expires_in_minutes"`
}

// ExpiresIn returns the bearer token lifetime.
func (j JWTConfig) ExpiresIn() time.Duration {
	return time.Duration(j.ExpiresInMinutes) * time.Minute
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health check endpoint
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSGATE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSGATE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSGATE_PORT value %q, using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}
	if level := os.Getenv("PASSGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if rpID := os.Getenv("PASSGATE_RP_ID"); rpID != "" {
		cfg.RelyingParty.ID = rpID
	}
	if origins := os.Getenv("PASSGATE_RP_ORIGINS"); origins != "" {
		cfg.RelyingParty.Origins = strings.Split(origins, ",")
	}
	if backend := os.Getenv("PASSGATE_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("PASSGATE_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("PASSGATE_REDIS_ADDR"); addr != "" {
		cfg.Storage.Ephemeral.Backend = "redis"
		cfg.Storage.Ephemeral.RedisAddr = addr
	}
	if password := os.Getenv("PASSGATE_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Ephemeral.RedisPassword = password
	}
	if secret := os.Getenv("PASSGATE_JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
}

// SetDefaults fills unset fields with development defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.RelyingParty.ID == "" {
		c.RelyingParty.ID = "localhost"
	}
	if c.RelyingParty.DisplayName == "" {
		c.RelyingParty.DisplayName = "Crypto Portfolio Dashboard"
	}
	if len(c.RelyingParty.Origins) == 0 {
		c.RelyingParty.Origins = []string{"http://localhost:3000"}
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = c.RelyingParty.Origins
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = 168
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "session"
	}
	if c.Session.CleanupIntervalMinutes == 0 {
		c.Session.CleanupIntervalMinutes = 5
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Ephemeral.Backend == "" {
		c.Storage.Ephemeral.Backend = "memory"
		if c.Storage.Backend == "sqlite" {
			c.Storage.Ephemeral.Backend = "sqlite"
		}
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "passgate"
	}
	if c.JWT.ExpiresInMinutes == 0 {
		c.JWT.ExpiresInMinutes = 60
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Health.Path == "" {
		c.Health.Path = "/health"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	switch c.Storage.Ephemeral.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Backend != "sqlite" {
			return fmt.Errorf("sqlite challenge storage requires the sqlite storage backend")
		}
	case "redis":
		if c.Storage.Ephemeral.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis ephemeral backend")
		}
	default:
		return fmt.Errorf("invalid ephemeral backend: %s (must be memory, sqlite, or redis)", c.Storage.Ephemeral.Backend)
	}

	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required when jwt is enabled")
	}

	// Delegate relying party validation to the ceremony config.
	if err := c.RelyingParty.ToCeremonyConfig(false).Validate(); err != nil {
		return fmt.Errorf("invalid relying party config: %w", err)
	}

	return nil
}
