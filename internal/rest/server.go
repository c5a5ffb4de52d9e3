// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package rest exposes the passwordless authentication ceremonies over an
// HTTP JSON API: registration and login (each a two-step options/verify
// exchange), logout, and the current-session endpoint, plus health and
// metrics.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryptofolio/passgate/pkg/ceremony"
	"github.com/cryptofolio/passgate/pkg/health"
	"github.com/cryptofolio/passgate/pkg/logging"
	"github.com/cryptofolio/passgate/pkg/metrics"
	"github.com/cryptofolio/passgate/pkg/session"
)

// Server represents the REST API server.
type Server struct {
	server       *http.Server
	engine       *ceremony.Engine
	sessions     *session.Manager
	jwt          *session.JWTIssuer
	logger       *logging.Logger
	checker      *health.Checker
	addr         string
	version      string
	cookieName   string
	cookieSecure bool
	tlsCertFile  string
	tlsKeyFile   string
}

// Config holds the REST server configuration.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// Engine runs the WebAuthn ceremonies. Required.
	Engine *ceremony.Engine

	// Sessions issues and validates login sessions. Required.
	Sessions *session.Manager

	// JWT optionally mints bearer tokens alongside the session cookie.
	JWT *session.JWTIssuer

	// Logger is the server logger. Required.
	Logger *logging.Logger

	// Checker runs readiness checks against the storage backends. A nil
	// checker reports ready.
	Checker *health.Checker

	// Version is reported by the health endpoint.
	Version string

	// CookieName is the session cookie name (default: "session").
	CookieName string

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	// MetricsEnabled mounts the Prometheus exposition endpoint.
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics).
	MetricsPath string

	// HealthPath is the health endpoint path (default: /health).
	HealthPath string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("ceremony engine is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	server := &Server{
		engine:       cfg.Engine,
		sessions:     cfg.Sessions,
		jwt:          cfg.JWT,
		logger:       cfg.Logger,
		checker:      cfg.Checker,
		addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		version:      cfg.Version,
		cookieName:   cfg.CookieName,
		cookieSecure: cfg.CookieSecure,
		tlsCertFile:  cfg.TLSCertFile,
		tlsKeyFile:   cfg.TLSKeyFile,
	}

	router := server.setupRouter(cfg)

	server.server = &http.Server{
		Addr:         server.addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	r.Get(cfg.HealthPath, s.HealthHandler)
	r.Head(cfg.HealthPath, s.HealthHandler)
	r.Get(cfg.HealthPath+"/ready", s.ReadinessHandler)

	if cfg.MetricsEnabled {
		r.Get(cfg.MetricsPath, promhttp.Handler().ServeHTTP)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.RegisterHandler)
		r.Post("/login", s.LoginHandler)
		r.Post("/logout", s.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.SessionAuthMiddleware())
			r.Get("/me", s.MeHandler)
		})
	})

	return r
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)

		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("failed to shutdown server: %v", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the configured router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
