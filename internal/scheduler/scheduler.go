// Package scheduler triggers the periodic engine jobs: the auction sweep
// and the ledger export. The engine itself keeps no timers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/service"
)

// Sweeper closes due auctions.
type Sweeper interface {
	ResolveAuctions(ctx context.Context) (service.SweepResult, error)
}

// Config holds the job intervals. A zero ArchiveInterval disables the
// ledger export.
type Config struct {
	SweepInterval   time.Duration
	ArchiveInterval time.Duration
	// LedgerRetention is how old an entry must be before it is exported.
	LedgerRetention time.Duration
}

// Scheduler runs the jobs on tickers until its context ends.
type Scheduler struct {
	sweeper  Sweeper
	archiver domain.Archiver
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Scheduler. archiver may be nil.
func New(sweeper Sweeper, archiver domain.Archiver, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	return &Scheduler{
		sweeper:  sweeper,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts every enabled job and blocks until ctx is cancelled or a job
// fails for a reason other than shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: starting",
		slog.Duration("sweep_interval", s.cfg.SweepInterval),
		slog.Duration("archive_interval", s.cfg.ArchiveInterval),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(ctx, "auction_sweep", s.cfg.SweepInterval, s.SweepOnce)
	})
	if s.archiver != nil && s.cfg.ArchiveInterval > 0 {
		g.Go(func() error {
			return s.loop(ctx, "ledger_archive", s.cfg.ArchiveInterval, s.ArchiveOnce)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("scheduler: stopped")
	return nil
}

// loop runs job immediately and then on every tick. Job errors are logged
// and the loop continues; only cancellation ends it.
func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, job func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "scheduler: job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single auction sweep.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	res, err := s.sweeper.ResolveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("sweep auctions: %w", err)
	}
	if res.Skipped {
		s.logger.DebugContext(ctx, "scheduler: sweep skipped, lock held elsewhere")
		return nil
	}
	if res.Opened+res.Sold+res.Expired > 0 {
		s.logger.InfoContext(ctx, "scheduler: sweep complete",
			slog.Int("opened", res.Opened),
			slog.Int("sold", res.Sold),
			slog.Int("expired", res.Expired),
		)
	}
	return nil
}

// ArchiveOnce exports ledger entries older than the retention window.
func (s *Scheduler) ArchiveOnce(ctx context.Context) error {
	before := s.now().Add(-s.cfg.LedgerRetention)
	path, n, err := s.archiver.ArchiveLedger(ctx, before)
	if err != nil {
		return fmt.Errorf("archive ledger: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "scheduler: ledger archived",
			slog.String("path", path),
			slog.Int64("count", n),
		)
	}
	return nil
}
