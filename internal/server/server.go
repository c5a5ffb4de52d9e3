// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package server assembles the configured storage backends, the ceremony
// engine, the session manager, and the REST server into one runnable unit.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptofolio/passgate/internal/config"
	"github.com/cryptofolio/passgate/internal/rest"
	"github.com/cryptofolio/passgate/internal/storage/sqlite"
	"github.com/cryptofolio/passgate/pkg/ceremony"
	"github.com/cryptofolio/passgate/pkg/health"
	"github.com/cryptofolio/passgate/pkg/logging"
	"github.com/cryptofolio/passgate/pkg/metrics"
	"github.com/cryptofolio/passgate/pkg/session"
)

// Server runs the authentication gateway: storage backends, ceremony
// engine, session manager, and the REST API.
type Server struct {
	config *config.Config
	logger *logging.Logger

	restServer *rest.Server

	// Storage handles that need closing on shutdown.
	sqliteStore *sqlite.Store
	redisClient *redis.Client

	metricsCollector *metrics.ResourceCollector
	healthChecker    *health.Checker

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// New creates a server from a validated configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	logger := logging.NewLogger(cfg.Logging.Level == "debug")

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(),
		ctx:           ctx,
		cancel:        cancel,
		shutdownCh:    make(chan struct{}),
	}

	engine, sessions, err := s.initializeStores()
	if err != nil {
		cancel()
		s.closeStores()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var issuer *session.JWTIssuer
	if cfg.JWT.Enabled {
		issuer, err = session.NewJWTIssuer(&session.JWTConfig{
			Secret:    []byte(cfg.JWT.Secret),
			Issuer:    cfg.JWT.Issuer,
			ExpiresIn: cfg.JWT.ExpiresIn(),
		})
		if err != nil {
			cancel()
			s.closeStores()
			return nil, fmt.Errorf("failed to create jwt issuer: %w", err)
		}
		logger.Info("JWT issuer enabled", "issuer", cfg.JWT.Issuer)
	}

	var certFile, keyFile string
	if cfg.TLS.Enabled {
		certFile = cfg.TLS.CertFile
		keyFile = cfg.TLS.KeyFile
	}

	s.restServer, err = rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Engine:         engine,
		Sessions:       sessions,
		JWT:            issuer,
		Logger:         logger,
		Checker:        s.healthChecker,
		Version:        version,
		CookieName:     cfg.Session.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		HealthPath:     cfg.Health.Path,
		TLSCertFile:    certFile,
		TLSKeyFile:     keyFile,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	})
	if err != nil {
		cancel()
		s.closeStores()
		return nil, fmt.Errorf("failed to create REST server: %w", err)
	}

	return s, nil
}

// initializeStores builds the durable and ephemeral backends selected by
// the configuration and wires them into the ceremony engine and session
// manager. Expiry sweepers for each backend run under the server context.
func (s *Server) initializeStores() (*ceremony.Engine, *session.Manager, error) {
	sweep := s.config.Session.CleanupInterval()

	var (
		users ceremony.UserStore
		creds ceremony.CredentialStore
	)

	switch s.config.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(s.config.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		s.sqliteStore = store

		userStore := sqlite.NewUserStore(store)
		users = userStore
		creds = userStore

		s.healthChecker.RegisterCheck("sqlite", health.PingCheck("sqlite", store.Ping))

		s.logger.Info("SQLite storage initialized", "path", s.config.Storage.Path)
	default:
		memStore := ceremony.NewMemoryStore()
		users = memStore
		creds = memStore

		s.logger.Info("In-memory storage initialized")
	}

	var ledger ceremony.ChallengeLedger
	switch s.config.Storage.Ephemeral.Backend {
	case "sqlite":
		sqliteLedger := sqlite.NewChallengeLedger(s.sqliteStore)
		sqliteLedger.StartCleanupRoutine(s.ctx, sweep)
		ledger = sqliteLedger
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     s.config.Storage.Ephemeral.RedisAddr,
			Password: s.config.Storage.Ephemeral.RedisPassword,
			DB:       s.config.Storage.Ephemeral.RedisDB,
		})
		if err := client.Ping(s.ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = client
		ledger = ceremony.NewRedisLedger(client)

		s.healthChecker.RegisterCheck("redis", health.PingCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))

		s.logger.Info("Redis challenge ledger initialized", "addr", s.config.Storage.Ephemeral.RedisAddr)
	default:
		memLedger := ceremony.NewMemoryLedger()
		memLedger.StartCleanupRoutine(s.ctx, sweep)
		ledger = memLedger
	}

	// Sessions follow challenges onto Redis when it is configured, so every
	// serving instance sees the same logins and key TTLs replace the
	// sweeper. Otherwise they live alongside the durable store.
	var sessionStore session.Store
	switch {
	case s.redisClient != nil:
		sessionStore = session.NewRedisStore(s.redisClient)
	case s.sqliteStore != nil:
		sqliteSessions := sqlite.NewSessionStore(s.sqliteStore)
		sqliteSessions.StartCleanupRoutine(s.ctx, sweep)
		sessionStore = sqliteSessions
	default:
		memSessions := session.NewMemoryStore()
		memSessions.StartCleanupRoutine(s.ctx, sweep)
		sessionStore = memSessions
	}

	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config:          s.config.RelyingParty.ToCeremonyConfig(s.config.Logging.Level == "debug"),
		UserStore:       users,
		CredentialStore: creds,
		ChallengeLedger: ledger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ceremony engine: %w", err)
	}

	sessions, err := session.NewManager(sessionStore, s.config.Session.TTL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	return engine, sessions, nil
}

// Start starts the REST server and, when enabled, the metrics collector.
func (s *Server) Start() error {
	s.logger.Info("Starting passgate server...")

	if s.config.Metrics.Enabled {
		metrics.Enable()
		s.metricsCollector = metrics.NewResourceCollector(s.ctx, 30*time.Second)
		go s.metricsCollector.Start()
		s.logger.Info("Metrics enabled", "path", s.config.Metrics.Path)
	} else {
		metrics.Disable()
	}

	s.wg.Add(1)
	go s.startREST()

	s.logger.Info("Server started",
		"addr", s.restServer.Addr(),
		"rp_id", s.config.RelyingParty.ID)

	return nil
}

// startREST runs the REST server until shutdown.
func (s *Server) startREST() {
	defer s.wg.Done()

	if err := s.restServer.Start(); err != nil {
		s.logger.Errorf("REST server error: %v", err)
	}
}

// Shutdown gracefully stops the server and closes storage backends.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
	}

	// Cancel context to stop the expiry sweepers.
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.restServer.Stop(shutdownCtx); err != nil {
		s.logger.Errorf("error shutting down REST server: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All servers stopped")
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	s.closeStores()

	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")

	return nil
}

// closeStores closes storage backend connections.
func (s *Server) closeStores() {
	if s.sqliteStore != nil {
		if err := s.sqliteStore.Close(); err != nil {
			s.logger.Errorf("error closing sqlite database: %v", err)
		}
		s.sqliteStore = nil
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Errorf("error closing redis client: %v", err)
		}
		s.redisClient = nil
	}
}

// WaitForShutdown blocks until the server is shut down.
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// RESTServer returns the REST server instance.
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// SetupSignalHandler returns a context that is cancelled on SIGINT or
// SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}
