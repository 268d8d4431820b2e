// Package server exposes the synced STX20 data over a read-only REST API,
// together with the sync trigger/status endpoints and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/observability"
	"github.com/alanyoungcy/stx20sync/internal/server/handler"
	"github.com/alanyoungcy/stx20sync/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Tokens   *handler.TokenHandler
	Balances *handler.BalanceHandler
	Prices   *handler.PriceHandler
	Sync     *handler.SyncHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// publicPaths skip API key authentication.
var publicPaths = []string{"/api/health", "/api/ready", "/api/docs", "/api/docs/openapi.json", "/metrics"}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, metrics *observability.Metrics, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      newHandler(cfg, handlers, metrics, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(cfg Config, handlers Handlers, metrics *observability.Metrics, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)

	mux.HandleFunc("GET /api/docs", handler.Docs)
	mux.HandleFunc("GET /api/docs/openapi.json", handler.OpenAPI)

	mux.HandleFunc("GET /api/tokens", handlers.Tokens.ListTokens)
	mux.HandleFunc("GET /api/tokens/{ticker}", handlers.Tokens.GetToken)
	mux.HandleFunc("GET /api/tokens/{ticker}/listings", handlers.Tokens.ListTokenListings)
	mux.HandleFunc("GET /api/tokens/{ticker}/price-data", handlers.Tokens.GetTokenPriceData)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Tokens.GetListing)

	mux.HandleFunc("GET /api/balances/{address}", handlers.Balances.ListBalances)
	mux.HandleFunc("GET /api/prices/reference", handlers.Prices.GetReferencePrices)

	mux.HandleFunc("GET /api/sync/status", handlers.Sync.GetStatus)
	mux.HandleFunc("POST /api/sync/trigger", handlers.Sync.TriggerSync)
	mux.HandleFunc("GET /api/sync/history", handlers.Sync.ListHistory)
	mux.HandleFunc("GET /api/sync/archive", handlers.Sync.ListArchive)

	mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, publicPaths...)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, metrics.HTTPRequests)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
