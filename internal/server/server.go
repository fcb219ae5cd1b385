package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/launchforge/launchpad/internal/crypto"
	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/server/handler"
	"github.com/launchforge/launchpad/internal/server/middleware"
	"github.com/launchforge/launchpad/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Deals         *handler.DealHandler
	Contributions *handler.ContributionHandler
	Claims        *handler.ClaimHandler
	Phases        *handler.PhaseHandler
	Webhooks      *handler.WebhookHandler
	Notifications *handler.NotificationHandler
}

// Server is the HTTP + WebSocket API for the funding-round engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. The settlement webhook route carries its own signature
// middleware and skips API-key auth: the HMAC is its authentication.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	verifier *crypto.WebhookVerifier,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Deal read surface.
	mux.HandleFunc("GET /api/deals", handlers.Deals.ListDeals)
	mux.HandleFunc("GET /api/deals/{id}", handlers.Deals.GetDeal)
	mux.HandleFunc("GET /api/deals/{id}/contributions", handlers.Deals.ListContributions)

	// Contribution endpoints.
	mux.HandleFunc("POST /api/deals/{id}/contributions", handlers.Contributions.Submit)
	mux.HandleFunc("GET /api/deals/{id}/eligibility", handlers.Contributions.Eligibility)

	// Claim endpoint.
	mux.HandleFunc("POST /api/deals/{id}/claim", handlers.Claims.Claim)

	// Operator phase transitions.
	mux.HandleFunc("POST /api/deals/{id}/phase", handlers.Phases.Transition)

	// Notification queue.
	mux.HandleFunc("GET /api/notifications", handlers.Notifications.List)
	mux.HandleFunc("POST /api/notifications/{id}/read", handlers.Notifications.MarkRead)

	// Settlement webhook: signature-verified, outside the API-key chain.
	var webhook http.Handler = http.HandlerFunc(handlers.Webhooks.Settlement)
	if verifier != nil {
		webhook = middleware.Signature(verifier, logger)(webhook)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// The webhook joins after auth so the HMAC is the only gate it passes.
	outer := http.NewServeMux()
	outer.Handle("POST /api/webhooks/settlement", webhook)
	outer.Handle("/", h)

	var root http.Handler = outer
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
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
