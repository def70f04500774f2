// Package server exposes the marketplace ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/curatorlabs/marketd/internal/domain"
	"github.com/curatorlabs/marketd/internal/server/handler"
	"github.com/curatorlabs/marketd/internal/server/middleware"
	"github.com/curatorlabs/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Listings  *handler.ListingHandler
	Purchases *handler.PurchaseHandler
	Queries   *handler.QueryHandler
	Assets    *handler.AssetHandler
}

// Server is the HTTP + WebSocket API server for the marketplace ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limiting, auth) wired up. The
// limiter and wsHub may be nil, which disables the corresponding feature.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by convention, but the auth middleware
	// wraps the whole mux; deployments that need open health checks run
	// with an empty API key behind a trusted proxy).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listing registry.
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("POST /api/listings/multi", handlers.Listings.CreateListingMulti)
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)

	// Settlement.
	mux.HandleFunc("POST /api/purchases", handlers.Purchases.Purchase)
	mux.HandleFunc("POST /api/purchases/multi", handlers.Purchases.PurchaseMulti)

	// Query index.
	mux.HandleFunc("GET /api/sellers/{addr}/listings", handlers.Queries.ListBySeller)
	mux.HandleFunc("GET /api/owners/{addr}/listings", handlers.Queries.ListByOwner)
	mux.HandleFunc("GET /api/assets/{contract}/{token}/metadata", handlers.Queries.GetMetadata)

	// Asset issuance and account funding.
	mux.HandleFunc("POST /api/assets/mint", handlers.Assets.Mint)
	mux.HandleFunc("POST /api/accounts/{addr}/credit", handlers.Assets.Credit)
	mux.HandleFunc("GET /api/accounts/{addr}/balance", handlers.Assets.Balance)

	// Live event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the server's root handler with the full middleware chain
// applied. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
