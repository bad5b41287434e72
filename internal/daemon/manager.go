// SPDX-License-Identifier: MIT

// Package daemon owns the process lifecycle: the HTTP servers, the device
// session, the pump, and graceful shutdown ordering.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	oaklog "github.com/oakgate/oakgate/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// ServerConfig shapes the daemon's HTTP listeners.
type ServerConfig struct {
	ListenAddr  string
	MetricsAddr string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	// WriteTimeout stays zero unless configured: MJPEG responses are
	// long-lived and a per-response deadline would cut them off.
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 1 << 20
	}
	return c
}

// Manager starts the API and metrics servers and coordinates shutdown.
type Manager struct {
	cfg            ServerConfig
	apiHandler     http.Handler
	metricsHandler http.Handler

	apiServer     *http.Server
	metricsServer *http.Server

	mu            sync.Mutex
	started       bool
	stopping      bool
	shutdownHooks []namedHook

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a lifecycle manager. The metrics handler is optional;
// nil disables the metrics listener.
func NewManager(cfg ServerConfig, apiHandler, metricsHandler http.Handler) (*Manager, error) {
	if apiHandler == nil {
		return nil, ErrMissingAPIHandler
	}
	return &Manager{
		cfg:            cfg.withDefaults(),
		apiHandler:     apiHandler,
		metricsHandler: metricsHandler,
		logger:         oaklog.WithComponent("daemon"),
	}, nil
}

// RegisterShutdownHook registers a cleanup function. Hooks run LIFO during
// Shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("event", "daemon.hook_registered").Str("hook", name).Msg("registered shutdown hook")
}

// Start runs the servers and blocks until ctx is canceled or a server
// fails, then shuts everything down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("event", "daemon.starting").
		Str("listen", m.cfg.ListenAddr).
		Str("metrics_listen", m.cfg.MetricsAddr).
		Dur("shutdown_timeout", m.cfg.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)

	if m.metricsHandler != nil && m.cfg.MetricsAddr != "" {
		m.startMetricsServer(errChan)
	}
	m.startAPIServer(errChan)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str("event", "daemon.server_failed").Msg("server error, initiating shutdown")
		// Detached but bounded, so shutdown completes even though the
		// parent context is about to be canceled.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.shutdown_signal").Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

func (m *Manager) startAPIServer(errChan chan<- error) {
	m.apiServer = &http.Server{
		Addr:              m.cfg.ListenAddr,
		Handler:           m.apiHandler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
		MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
	}

	go func() {
		m.logger.Info().
			Str("event", "api.listening").
			Str("addr", m.cfg.ListenAddr).
			Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()
}

func (m *Manager) startMetricsServer(errChan chan<- error) {
	m.metricsServer = &http.Server{
		Addr:              m.cfg.MetricsAddr,
		Handler:           m.metricsHandler,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
	}

	go func() {
		m.logger.Info().
			Str("event", "metrics.listening").
			Str("addr", m.cfg.MetricsAddr).
			Msg("metrics server listening")
		if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown stops the servers and runs the registered hooks. It is
// idempotent; a second call returns nil immediately.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := m.shutdownHooks
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.stopping").Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("event", "daemon.hook_failed").
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("event", "daemon.hook_done").
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("daemon: shutdown: %w", errors.Join(errs...))
	}
	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon manager stopped cleanly")
	return nil
}
