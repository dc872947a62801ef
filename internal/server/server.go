// Package server exposes the settlement engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/server/handler"
	"github.com/alanyoungcy/tokenarena/internal/server/middleware"
	"github.com/alanyoungcy/tokenarena/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when set.
	APIKey string
	// StakeRateLimit caps bets and bids per client per StakeRateWindow.
	StakeRateLimit  int
	StakeRateWindow time.Duration
	ShutdownTimeout time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Auctions   *handler.AuctionHandler
	Ledger     *handler.LedgerHandler
	Governance *handler.GovernanceHandler
	Audit      *handler.AuditHandler
}

// Server is the API server.
type Server struct {
	httpServer *http.Server
	cfg        Config
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging and
// auth. limiter and hub may be nil.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()
	stake := middleware.RateLimit(limiter, "stake", cfg.StakeRateLimit, cfg.StakeRateWindow, logger)

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.Handle("POST /api/markets/{id}/bets", stake(http.HandlerFunc(h.Markets.PlaceBet)))
	mux.HandleFunc("POST /api/markets/{id}/resolve", h.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/lock", h.Markets.LockMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", h.Markets.CancelMarket)

	mux.HandleFunc("GET /api/auctions", h.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", h.Auctions.StartAuction)
	mux.HandleFunc("POST /api/auctions/sweep", h.Auctions.Sweep)
	mux.HandleFunc("GET /api/auctions/{id}/bids", h.Auctions.ListBids)
	mux.Handle("POST /api/auctions/{id}/bids", stake(http.HandlerFunc(h.Auctions.PlaceBid)))
	mux.HandleFunc("GET /api/assets/{ref}/owner", h.Auctions.GetOwner)

	mux.HandleFunc("GET /api/ledger", h.Ledger.ListEntries)
	mux.HandleFunc("GET /api/ledger/balance", h.Ledger.Balance)
	mux.HandleFunc("POST /api/ledger/archive", h.Ledger.ArchiveLedger)
	mux.HandleFunc("GET /api/fees", h.Ledger.ListFees)
	mux.HandleFunc("PUT /api/fees/{type}", h.Ledger.SetFee)
	mux.HandleFunc("GET /api/settlements/{id}", h.Ledger.GetSettlement)

	mux.HandleFunc("GET /api/governance/cooldown", h.Governance.Cooldown)
	mux.HandleFunc("POST /api/governance/check", h.Governance.Check)
	mux.HandleFunc("GET /api/audit", h.Audit.List)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health")(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the wrapped router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
