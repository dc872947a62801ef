package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tokenarena/internal/scheduler"
	"github.com/alanyoungcy/tokenarena/internal/server"
	"github.com/alanyoungcy/tokenarena/internal/server/handler"
	"github.com/alanyoungcy/tokenarena/internal/server/ws"
)

// ServerMode serves the HTTP API and, when an event bus exists, the
// WebSocket feed. Auctions only close through POST /api/auctions/sweep.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// SweeperMode runs only the periodic jobs.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// FullMode runs the API and the periodic jobs in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startScheduler(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.EventSource != nil {
		hub = ws.NewHub(deps.EventSource, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
	}

	h := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Pingers, a.logger),
		Markets:    handler.NewMarketHandler(deps.MarketSvc, a.logger),
		Auctions:   handler.NewAuctionHandler(deps.AuctionSvc, a.logger),
		Ledger:     handler.NewLedgerHandler(deps.LedgerSvc, deps.Archiver, a.logger),
		Governance: handler.NewGovernanceHandler(deps.Governor, a.logger),
		Audit:      handler.NewAuditHandler(deps.Audit, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		StakeRateLimit:  a.cfg.Server.StakeRateLimit,
		StakeRateWindow: a.cfg.Server.StakeRateWindow.Duration,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration,
	}, h, deps.RateLimiter, hub, a.logger)

	g.Go(func() error { return srv.Run(ctx) })
}

func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sched := scheduler.New(deps.AuctionSvc, deps.Archiver, scheduler.Config{
		SweepInterval:   a.cfg.Scheduler.SweepInterval.Duration,
		ArchiveInterval: a.cfg.Scheduler.ArchiveInterval.Duration,
		LedgerRetention: a.cfg.Scheduler.LedgerRetention.Duration,
	}, a.logger)
	g.Go(func() error { return sched.Run(ctx) })
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
