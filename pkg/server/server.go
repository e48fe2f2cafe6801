// Package server provides the gateway's HTTP surface: the
// OpenAI-compatible completion endpoint, the dashboard API and the
// operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"openclaw/hub/pkg/config"
	"openclaw/hub/pkg/dashboard"
	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/pipeline"
	"openclaw/hub/pkg/server/handlers"
	"openclaw/hub/pkg/server/middleware"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/telemetry/metrics"
	"openclaw/hub/pkg/vault"
)

// Deps carries everything the HTTP layer serves from.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Dashboard *dashboard.Dashboard
	Store     *storage.Store
	Vault     *vault.Vault
	Tracker   *health.Tracker
	Metrics   *metrics.Collector
	Version   string
}

// Server is the gateway HTTP server.
type Server struct {
	config       *config.Config
	deps         Deps
	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{config: cfg, deps: deps}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddress(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gateway server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		return err
	}
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}

		slog.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		slog.Info("gateway server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is accepting traffic.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler builds the full route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	chat := handlers.NewChatHandler(s.deps.Pipeline, s.deps.Metrics)
	models := handlers.NewModelsHandler(s.deps.Pipeline)
	healthH := handlers.NewHealthHandler(s.deps.Tracker, s.deps.Version)
	conns := handlers.NewConnectionsHandler(s.deps.Store, s.deps.Vault, s.deps.Dashboard)
	dash := handlers.NewDashboardHandler(s.deps.Dashboard, s.deps.Store)
	costs := handlers.NewCostsHandler(s.deps.Store)
	alerts := handlers.NewAlertsHandler(s.deps.Store)

	mux.Handle("GET /health", healthH)
	mux.Handle("POST /v1/chat/completions", chat)
	mux.Handle("GET /v1/models", models)

	mux.HandleFunc("GET /api/dashboard/stats", dash.Stats)
	mux.HandleFunc("GET /api/dashboard/usage", dash.Usage)
	mux.HandleFunc("GET /api/dashboard/requests", dash.Requests)
	mux.HandleFunc("GET /api/dashboard/budget", dash.Budget)
	mux.HandleFunc("PUT /api/dashboard/budget", dash.UpdateBudget)

	mux.HandleFunc("GET /api/dashboard/connections", conns.List)
	mux.HandleFunc("POST /api/dashboard/connections", conns.Create)
	mux.HandleFunc("GET /api/dashboard/connections/{id}", conns.Get)
	mux.HandleFunc("PUT /api/dashboard/connections/{id}", conns.Update)
	mux.HandleFunc("PATCH /api/dashboard/connections/{id}", conns.Update)
	mux.HandleFunc("DELETE /api/dashboard/connections/{id}", conns.Delete)
	mux.HandleFunc("POST /api/dashboard/connections/{id}/toggle", conns.Toggle)
	mux.HandleFunc("POST /api/dashboard/connections/{id}/override", conns.Override)

	mux.HandleFunc("GET /api/dashboard/costs", costs.List)
	mux.HandleFunc("POST /api/dashboard/costs", costs.Upsert)
	mux.HandleFunc("PUT /api/dashboard/costs/{id}", costs.Update)

	mux.HandleFunc("GET /api/alerts", alerts.List)
	mux.HandleFunc("GET /api/alerts/active", alerts.Active)
	mux.HandleFunc("POST /api/alerts/{id}/dismiss", alerts.Dismiss)

	if s.config.Telemetry.Metrics.Enabled && s.deps.Metrics != nil {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(s.config.Server.RequestDeadline)(handler)
	handler = middleware.CORS(handler)
	if s.deps.Metrics != nil {
		handler = middleware.Metrics(s.deps.Metrics)(handler)
	}
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}
