// Package server exposes the rule engine over HTTP: an evaluation API,
// rule-set inspection endpoints, Prometheus metrics and a small dashboard.
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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aeo-score-service/internal/rules"
)

// Config holds the HTTP server settings.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	DefaultRuleSet  string
	DefaultTier     rules.Tier
}

// DefaultConfig returns the server defaults
func DefaultConfig() Config {
	return Config{
		ListenAddress:   ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		DefaultRuleSet:  "aeo-default",
		DefaultTier:     rules.TierFree,
	}
}

// Server serves the evaluation API.
type Server struct {
	config       Config
	store        *rules.Store
	engine       *rules.Engine
	registry     *prometheus.Registry
	metrics      *Metrics
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates an evaluation server backed by a rule-set store
func NewServer(cfg Config, store *rules.Store) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		config:       cfg,
		store:        store,
		engine:       rules.NewEngine(store),
		registry:     registry,
		metrics:      NewMetrics(registry),
		shutdownChan: make(chan struct{}),
	}
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
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting evaluation server",
			"address", s.config.ListenAddress,
			"default_rule_set", s.config.DefaultRuleSet,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		s.mu.Unlock()
		if !running || s.httpServer == nil {
			return
		}

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
		} else {
			slog.Info("server stopped")
		}
	})

	return shutdownErr
}

// Stop requests an asynchronous shutdown
func (s *Server) Stop() {
	close(s.shutdownChan)
}

// Handler builds the full route table. Exposed so tests can drive the
// server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/rulesets", s.handleListRuleSets)
	mux.HandleFunc("GET /v1/rulesets/{name}", s.handleGetRuleSet)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return s.logRequests(mux)
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
