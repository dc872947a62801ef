package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tokenarena/internal/blob/s3"
	"github.com/alanyoungcy/tokenarena/internal/broker"
	"github.com/alanyoungcy/tokenarena/internal/cache/redis"
	"github.com/alanyoungcy/tokenarena/internal/config"
	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/notify"
	"github.com/alanyoungcy/tokenarena/internal/server/handler"
	"github.com/alanyoungcy/tokenarena/internal/service"
	"github.com/alanyoungcy/tokenarena/internal/store/memory"
	"github.com/alanyoungcy/tokenarena/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is built by Wire
// and torn down by the cleanup function Wire returns.
type Dependencies struct {
	// Stores
	Markets  domain.MarketStore
	Auctions domain.AuctionStore
	Ledger   domain.LedgerStore
	Fees     domain.FeeConfigStore
	Audit    domain.AuditStore

	// Optional infrastructure; nil when disabled.
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	// SignalBus is what services publish to. With AMQP enabled it is the
	// broker mirror wrapped around EventSource.
	SignalBus domain.SignalBus
	// EventSource is the subscribable bus feeding the WebSocket hub.
	EventSource domain.SignalBus
	Archiver    domain.Archiver

	Notifier *notify.Notifier
	Pingers  map[string]handler.Pinger

	// Services
	LedgerSvc  *service.LedgerService
	Resolver   *service.ResolutionEngine
	MarketSvc  *service.MarketService
	AuctionSvc *service.AuctionService
	Governor   *service.Governor
}

// pingFunc adapts a health probe to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs every dependency from cfg and returns a cleanup function
// that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- Stores ---
	switch cfg.Storage {
	case config.StoragePostgres:
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pg.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Auctions = postgres.NewAuctionStore(pool)
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Fees = postgres.NewFeeConfigStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pg
	default:
		mem := memory.New()
		closers = append(closers, mem.Close)
		deps.Markets = mem.Markets()
		deps.Auctions = mem.Auctions()
		deps.Ledger = mem.Ledger()
		deps.Fees = mem.Fees()
		deps.Audit = mem.Audit()
		logger.WarnContext(ctx, "wire: using in-memory storage, state is lost on exit")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.MarketCacheTTL.Duration)
		deps.LockManager = redis.NewLockManager(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		bus := redis.NewSignalBusWithMaxLen(rc, cfg.Redis.StreamMaxLen)
		deps.SignalBus = bus
		deps.EventSource = bus
		deps.Pingers["redis"] = rc
	} else {
		logger.WarnContext(ctx, "wire: redis disabled, running without cache, sweep lock or event bus")
	}

	// --- AMQP mirror ---
	if cfg.AMQP.Enabled {
		pub, err := broker.Dial(broker.Config{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange})
		if err != nil {
			return fail(fmt.Errorf("wire: amqp: %w", err))
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.SignalBus = broker.NewMirror(deps.EventSource, pub, logger)
	}

	// --- S3 settlement archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc), s3blob.NewReader(sc), deps.Ledger, deps.Audit)
		deps.Pingers["s3"] = pingFunc(sc.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			// A bad bot token should not keep the engine down.
			logger.WarnContext(ctx, "wire: telegram disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.LedgerSvc = service.NewLedgerService(deps.Ledger, deps.Fees, deps.SignalBus, logger).
		WithAuditLog(deps.Audit)
	deps.Resolver = service.NewResolutionEngine(
		deps.Markets, deps.Auctions, deps.LedgerSvc,
		service.ResolutionConfig{
			HouseFeeRate: cfg.Engine.HouseFeeRate,
			SweepLockTTL: cfg.Engine.SweepLockTTL.Duration,
		},
		logger,
	).
		WithLockManager(deps.LockManager).
		WithMarketCache(deps.MarketCache).
		WithArchiver(deps.Archiver).
		WithAuditLog(deps.Audit).
		WithNotifier(deps.Notifier).
		WithSignalBus(deps.SignalBus)

	deps.MarketSvc = service.NewMarketService(
		deps.Markets, deps.MarketCache, deps.SignalBus, deps.Resolver,
		service.MarketConfig{GovernanceCooldown: cfg.Engine.GovernanceCooldown.Duration},
		logger,
	)
	deps.AuctionSvc = service.NewAuctionService(
		deps.Auctions, deps.SignalBus, deps.Resolver,
		service.AuctionConfig{
			BasePrice:       cfg.Auction.BasePrice,
			ReputationNorm:  cfg.Auction.ReputationNorm,
			MinIncrement:    cfg.Auction.MinIncrement,
			LoyaltyDuration: cfg.Auction.LoyaltyDuration.Duration,
			AuctionDuration: cfg.Auction.AuctionDuration.Duration,
			MaxBidAttempts:  cfg.Engine.MaxBidAttempts,
		},
		logger,
	)
	deps.Governor = service.NewGovernor(deps.Markets, logger)

	seeds := make([]domain.FeeConfig, 0, len(cfg.Fees))
	for _, f := range cfg.Fees {
		seeds = append(seeds, domain.FeeConfig{FeeType: f.FeeType, Rate: f.Rate, FlatAmount: f.FlatAmount})
	}
	if _, err := deps.LedgerSvc.SeedFeeConfigs(ctx, seeds); err != nil {
		return fail(fmt.Errorf("wire: seed fees: %w", err))
	}

	return deps, cleanup, nil
}
