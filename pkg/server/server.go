// Package server provides the HTTP server of the proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/cancel"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/eventlog/recorder"
	"mercator-hq/courier/pkg/providers/openai"
	"mercator-hq/courier/pkg/proxy/handlers"
	"mercator-hq/courier/pkg/proxy/middleware"
	"mercator-hq/courier/pkg/telemetry/health"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

// readinessCheckTimeout bounds each readiness check.
const readinessCheckTimeout = 2 * time.Second

// Server is the proxy HTTP server. It owns the backend client, the
// cancellation registry, the event log and the telemetry providers.
type Server struct {
	current atomic.Pointer[config.Config]

	registry *cancel.Registry
	client   *openai.Client
	events   *recorder.Recorder
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	checker  *health.Checker
	deps     *handlers.Deps

	httpServer   *http.Server
	handler      http.Handler
	cancelBg     context.CancelFunc
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	closeOnce    sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server for cfg. Background work (backend health probes,
// event log rotation) runs until the server is closed.
func New(cfg *config.Config, version string) (*Server, error) {
	bgCtx, cancelBg := context.WithCancel(context.Background())

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
	if err != nil {
		cancelBg()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	var events *recorder.Recorder
	if cfg.EventLog.Enabled {
		events, err = recorder.Open(bgCtx, cfg.EventLog)
		if err != nil {
			cancelBg()
			_ = tracer.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}

	registry := cancel.NewRegistry()
	client := openai.NewClient(openai.ProviderConfig(&cfg.Backend), registry)

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	client.SetObserver(collector)
	collector.TrackActiveRequests(registry.Len)

	s := &Server{
		registry:     registry,
		client:       client,
		events:       events,
		metrics:      collector,
		tracer:       tracer,
		checker:      health.New(readinessCheckTimeout),
		cancelBg:     cancelBg,
		shutdownChan: make(chan struct{}),
	}
	s.current.Store(cfg)

	s.deps = &handlers.Deps{
		Backend:  client,
		Registry: registry,
		Events:   events,
		Metrics:  collector,
		Tracer:   tracer,
		Config:   s.Config,
		Version:  version,
	}

	s.registerChecks()
	if cfg.Backend.HealthCheckInterval > 0 {
		client.StartHealthChecker(bgCtx)
	}
	if !cfg.Backend.APIKeyLooksValid() {
		slog.Warn("backend API key does not look valid for this base URL", "base_url", cfg.Backend.BaseURL)
	}

	s.handler = s.setupRoutes()
	return s, nil
}

// Config returns the configuration currently in effect.
func (s *Server) Config() *config.Config {
	return s.current.Load()
}

// UpdateConfig swaps in a reloaded configuration. Model mapping, limits,
// conversion and auth settings apply to the next request; listener and
// backend connection settings need a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	prev := s.current.Swap(cfg)
	if prev == nil {
		return
	}
	if prev.Backend.BaseURL != cfg.Backend.BaseURL || prev.Backend.APIKey != cfg.Backend.APIKey {
		slog.Warn("backend connection settings changed; restart to apply them")
	}
	if prev.Proxy.ListenAddress != cfg.Proxy.ListenAddress {
		slog.Warn("listen address changed; restart to apply it")
	}
}

// Registry returns the cancellation registry.
func (s *Server) Registry() *cancel.Registry {
	return s.registry
}

// Start listens on the configured address and serves until ctx is
// cancelled, a shutdown signal arrives or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Config().Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Config().Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener. It blocks like Start.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	proxyCfg := s.Config().Proxy
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    proxyCfg.ReadTimeout,
		WriteTimeout:   proxyCfg.WriteTimeout,
		IdleTimeout:    proxyCfg.IdleTimeout,
		MaxHeaderBytes: proxyCfg.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting proxy server",
			"address", listener.Addr().String(),
			"backend", s.Config().Backend.BaseURL,
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Close()
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections, waits up to the shutdown timeout
// for in-flight requests and then releases the server's resources.
// Streams still running at the deadline are cancelled through the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		httpServer := s.httpServer
		s.mu.Unlock()

		if running && httpServer != nil {
			timeout := s.Config().Proxy.ShutdownTimeout
			slog.Info("initiating graceful shutdown", "timeout", timeout.String())

			shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				for _, id := range s.registry.Active() {
					s.registry.Cancel(id)
				}
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		if err := s.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		slog.Info("proxy server stopped")
	})

	return shutdownErr
}

// RequestShutdown asks a running Start or Serve to return.
func (s *Server) RequestShutdown() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Close releases the backend client, the event log and the tracer. It does
// not stop a running listener; use Shutdown for that.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.cancelBg()
		if err := s.client.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.events != nil {
			if err := s.events.Close(); err != nil {
				errs = append(errs, fmt.Errorf("event log: %w", err))
			}
		}
		if err := s.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	})
	return errors.Join(errs...)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// registerChecks sets up the readiness checks: the backend is required,
// the event log is optional.
func (s *Server) registerChecks() {
	s.checker.Register("backend", true, func(ctx context.Context) error {
		healthy := s.client.IsHealthy()
		s.metrics.UpdateBackendHealth(healthy)
		if !healthy {
			if err := s.client.GetHealth().LastError; err != nil {
				return fmt.Errorf("backend unhealthy: %w", err)
			}
			return errors.New("backend unhealthy")
		}
		return nil
	})

	s.checker.Register("config", true, func(ctx context.Context) error {
		if s.Config().Backend.APIKey == "" {
			return errors.New("backend API key is not configured")
		}
		return nil
	})

	if s.events != nil {
		s.checker.Register("event_log", false, func(ctx context.Context) error {
			_, err := s.events.Count(ctx)
			return err
		})
	}
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	cfg := s.Config()

	api := func(h http.Handler) http.Handler {
		return middleware.Chain(h,
			middleware.AuthMiddleware(s.Config),
			middleware.BodyLimitMiddleware(cfg.Proxy.MaxBodyBytes),
		)
	}

	mux.Handle("POST /v1/messages", api(handlers.NewMessagesHandler(s.deps)))
	mux.Handle("POST /v1/messages/count_tokens", api(handlers.NewCountTokensHandler(s.deps)))
	mux.Handle("POST /v1/requests/{id}/cancel", api(handlers.NewCancelHandler(s.deps)))
	mux.Handle("POST /api/event_logging/batch", api(handlers.NewEventLogHandler(s.deps)))

	mux.Handle("GET /health", handlers.NewHealthHandler(s.deps))
	mux.Handle("GET /ready", s.checker.ReadinessHandler())
	mux.Handle("GET /test-connection", handlers.NewTestConnectionHandler(s.deps))
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}
	mux.Handle("/", handlers.NewRootHandler(s.deps))

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		s.tracer.Middleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(cfg.Proxy.CORS),
	)
}
