package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// sweepLockKey guards the auction sweep across replicas.
const sweepLockKey = "sweep:auctions"

// ResolutionConfig holds the tunables of the resolution engine.
type ResolutionConfig struct {
	// HouseFeeRate applies when no market_house_fee rule is configured.
	HouseFeeRate float64
	SweepLockTTL time.Duration
}

// MarketResolution summarises a committed market resolution.
type MarketResolution struct {
	Market        domain.Market `json:"market"`
	Winners       int           `json:"winners"`
	Losers        int           `json:"losers"`
	TotalPaidOut  int64         `json:"total_paid_out"`
	DaoFee        int64         `json:"dao_fee"`
	// HouseExposure is how far payouts plus fee exceed the pool. Fixed odds
	// do not guarantee they fit; the house covers the difference.
	HouseExposure int64         `json:"house_exposure,omitempty"`
}

// SweepResult counts the transitions made by one auction sweep.
type SweepResult struct {
	Opened  int  `json:"opened"`
	Sold    int  `json:"sold"`
	Expired int  `json:"expired"`
	Skipped bool `json:"skipped,omitempty"`
}

// ResolutionEngine turns open markets and due auctions into terminal state:
// payouts, fee entries and ownership transfers, each committed atomically by
// the store.
type ResolutionEngine struct {
	markets  domain.MarketStore
	auctions domain.AuctionStore
	ledger   *LedgerService
	cfg      ResolutionConfig

	locks    domain.LockManager
	cache    domain.MarketCache
	archiver domain.Archiver
	audit    domain.AuditStore
	notifier Notifier
	events   publisher

	logger *slog.Logger
	now    func() time.Time
}

// NewResolutionEngine creates a ResolutionEngine. Optional collaborators are
// attached with the With* methods.
func NewResolutionEngine(
	markets domain.MarketStore,
	auctions domain.AuctionStore,
	ledger *LedgerService,
	cfg ResolutionConfig,
	logger *slog.Logger,
) *ResolutionEngine {
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = 30 * time.Second
	}
	logger = logger.With(slog.String("component", "resolution"))
	return &ResolutionEngine{
		markets:  markets,
		auctions: auctions,
		ledger:   ledger,
		cfg:      cfg,
		events:   publisher{logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLockManager makes the auction sweep take a distributed lock.
func (e *ResolutionEngine) WithLockManager(locks domain.LockManager) *ResolutionEngine {
	e.locks = locks
	return e
}

// WithMarketCache invalidates cached markets after they settle.
func (e *ResolutionEngine) WithMarketCache(cache domain.MarketCache) *ResolutionEngine {
	e.cache = cache
	return e
}

// WithArchiver writes a settlement receipt after each market resolution.
func (e *ResolutionEngine) WithArchiver(a domain.Archiver) *ResolutionEngine {
	e.archiver = a
	return e
}

// WithAuditLog records each market settlement in the audit trail.
func (e *ResolutionEngine) WithAuditLog(audit domain.AuditStore) *ResolutionEngine {
	e.audit = audit
	return e
}

// WithNotifier sends operator alerts for resolutions and sweep failures.
func (e *ResolutionEngine) WithNotifier(n Notifier) *ResolutionEngine {
	e.notifier = n
	return e
}

// WithSignalBus publishes resolution events.
func (e *ResolutionEngine) WithSignalBus(bus domain.SignalBus) *ResolutionEngine {
	e.events.bus = bus
	return e
}

// WithClock overrides the time source.
func (e *ResolutionEngine) WithClock(now func() time.Time) *ResolutionEngine {
	e.now = now
	return e
}

// houseFeePPM returns the market house fee rate in parts per million.
func (e *ResolutionEngine) houseFeePPM(ctx context.Context) (int64, error) {
	cfg, err := e.ledger.FeeConfig(ctx, domain.FeeMarketHouse)
	if errors.Is(err, domain.ErrUnknownFeeType) {
		return domain.RatePPM(e.cfg.HouseFeeRate), nil
	}
	if err != nil {
		return 0, err
	}
	return cfg.RatePPM(), nil
}

// ResolveMarket settles every active bet on the market against the winning
// option. A market already resolved or cancelled fails with
// ErrAlreadyResolved and nothing is written.
func (e *ResolutionEngine) ResolveMarket(ctx context.Context, marketID string, winningOptionID int) (MarketResolution, error) {
	ratePPM, err := e.houseFeePPM(ctx)
	if err != nil {
		return MarketResolution{}, fmt.Errorf("resolution: house fee: %w", err)
	}
	now := e.now()

	var res MarketResolution
	settle := func(m domain.Market, active []domain.Bet) (domain.MarketSettlement, error) {
		if _, ok := m.Option(winningOptionID); !ok {
			return domain.MarketSettlement{}, fmt.Errorf("winning option %d: %w", winningOptionID, domain.ErrNotFound)
		}
		res = MarketResolution{}

		outcomes := make([]domain.BetOutcome, 0, len(active))
		for _, b := range active {
			if b.OptionID != winningOptionID {
				outcomes = append(outcomes, domain.BetOutcome{BetID: b.ID, Status: domain.BetStatusLost})
				res.Losers++
				continue
			}
			paid := b.PotentialPayout - domain.FloorShare(b.PotentialPayout, ratePPM)
			outcomes = append(outcomes, domain.BetOutcome{BetID: b.ID, Status: domain.BetStatusWon, PaidOut: paid})
			res.Winners++
			res.TotalPaidOut += paid
		}

		res.DaoFee = domain.FloorShare(m.TotalPool, ratePPM)
		res.HouseExposure = max(res.TotalPaidOut+res.DaoFee-m.TotalPool, 0)
		refs := map[string]string{
			"market_id":         m.ID,
			"winning_option_id": strconv.Itoa(winningOptionID),
		}
		var entries []domain.LedgerEntry
		if res.DaoFee > 0 {
			entry, err := NewLedgerEntry(domain.TxMarketDaoFee, res.DaoFee, domain.DirectionInflow, refs, now)
			if err != nil {
				return domain.MarketSettlement{}, err
			}
			entries = append(entries, entry)
		}
		if res.HouseExposure > 0 {
			entry, err := NewLedgerEntry(domain.TxMarketHouseExposure, res.HouseExposure, domain.DirectionOutflow, refs, now)
			if err != nil {
				return domain.MarketSettlement{}, err
			}
			entries = append(entries, entry)
		}

		win := winningOptionID
		return domain.MarketSettlement{
			Status:          domain.MarketStatusResolved,
			WinningOptionID: &win,
			FeeCollected:    res.DaoFee,
			SettledAt:       now,
			Outcomes:        outcomes,
			LedgerEntries:   entries,
		}, nil
	}

	m, err := e.markets.Settle(ctx, marketID, settle)
	if err != nil {
		return MarketResolution{}, fmt.Errorf("resolution: resolve market %s: %w", marketID, err)
	}
	res.Market = m

	e.logger.InfoContext(ctx, "resolution: market resolved",
		slog.String("market_id", marketID),
		slog.Int("winning_option_id", winningOptionID),
		slog.Int("winners", res.Winners),
		slog.Int("losers", res.Losers),
		slog.Int64("total_paid_out", res.TotalPaidOut),
		slog.Int64("dao_fee", res.DaoFee),
		slog.Int64("house_exposure", res.HouseExposure),
	)
	e.afterSettle(ctx, m, EventMarketResolved, domain.AuditMarketResolved, res)
	notify(ctx, e.notifier, e.logger, EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("%s: option %d won, %d winner(s), %d paid out, %d fee", m.Title, winningOptionID, res.Winners, res.TotalPaidOut, res.DaoFee),
	)
	return res, nil
}

// CancelMarket refunds every active bet in full and moves the market to
// cancelled. No fee is taken.
func (e *ResolutionEngine) CancelMarket(ctx context.Context, marketID string) (domain.Market, error) {
	now := e.now()
	refund := func(_ domain.Market, active []domain.Bet) (domain.MarketSettlement, error) {
		outcomes := make([]domain.BetOutcome, 0, len(active))
		for _, b := range active {
			outcomes = append(outcomes, domain.BetOutcome{BetID: b.ID, Status: domain.BetStatusRefunded, PaidOut: b.Amount})
		}
		return domain.MarketSettlement{
			Status:    domain.MarketStatusCancelled,
			SettledAt: now,
			Outcomes:  outcomes,
		}, nil
	}

	m, err := e.markets.Settle(ctx, marketID, refund)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution: cancel market %s: %w", marketID, err)
	}
	e.logger.InfoContext(ctx, "resolution: market cancelled",
		slog.String("market_id", marketID),
		slog.Int64("refunded", m.TotalPool),
	)
	e.afterSettle(ctx, m, EventMarketCancelled, domain.AuditMarketCancelled, m)
	return m, nil
}

// afterSettle runs the post-commit side effects of a market settlement.
// Failures are logged; the settlement itself is already durable.
func (e *ResolutionEngine) afterSettle(ctx context.Context, m domain.Market, eventType, auditEvent string, payload any) {
	if e.audit != nil {
		detail := map[string]any{
			"market_id":     m.ID,
			"status":        string(m.Status),
			"total_pool":    m.TotalPool,
			"fee_collected": m.FeeCollected,
		}
		if m.WinningOptionID != nil {
			detail["winning_option_id"] = *m.WinningOptionID
		}
		if err := e.audit.Log(ctx, auditEvent, detail); err != nil {
			e.logger.WarnContext(ctx, "resolution: audit log failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, m.ID); err != nil {
			e.logger.WarnContext(ctx, "resolution: cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.events.publish(ctx, domain.ChannelMarkets, eventType, payload, e.now())

	if e.archiver == nil {
		return
	}
	bets, err := e.markets.ListBets(ctx, m.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "resolution: list bets for receipt failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	path, err := e.archiver.ArchiveSettlement(ctx, domain.SettlementReceipt{
		Market:     m,
		Bets:       bets,
		ArchivedAt: e.now(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "resolution: archive settlement failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.DebugContext(ctx, "resolution: settlement archived",
		slog.String("market_id", m.ID),
		slog.String("path", path),
	)
}

// ResolveAuctions opens elapsed loyalty windows and closes every open auction
// past its deadline. Each transition is conditional in the store, so
// overlapping sweeps never double-apply. Failures on one auction do not stop
// the others; they are joined into the returned error.
func (e *ResolutionEngine) ResolveAuctions(ctx context.Context) (SweepResult, error) {
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, sweepLockKey, e.cfg.SweepLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.DebugContext(ctx, "resolution: sweep already running elsewhere")
			return SweepResult{Skipped: true}, nil
		}
		if err != nil {
			return SweepResult{}, fmt.Errorf("resolution: acquire sweep lock: %w", err)
		}
		defer unlock()
	}

	now := e.now()
	var res SweepResult
	var errs []error

	elapsed, err := e.auctions.ListLoyaltyElapsed(ctx, now)
	if err != nil {
		return res, e.sweepFailed(ctx, fmt.Errorf("resolution: list loyalty elapsed: %w", err))
	}
	for _, a := range elapsed {
		ok, err := e.auctions.OpenLoyalty(ctx, a.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolution: open auction %s: %w", a.ID, err))
			continue
		}
		if ok {
			res.Opened++
			a.Status = domain.AuctionStatusOpen
			e.events.publish(ctx, domain.ChannelAuctions, EventAuctionOpened, a, now)
		}
	}

	due, err := e.auctions.ListDue(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolution: list due: %w", err))
		return res, e.sweepFailed(ctx, errors.Join(errs...))
	}
	var fee *domain.FeeConfig
	if len(due) > 0 {
		if fee, err = e.auctionFee(ctx); err != nil {
			errs = append(errs, err)
			return res, e.sweepFailed(ctx, errors.Join(errs...))
		}
	}
	for _, a := range due {
		status, err := e.closeAuction(ctx, a.ID, fee, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch status {
		case domain.AuctionStatusSold:
			res.Sold++
		case domain.AuctionStatusExpired:
			res.Expired++
		}
	}

	if res.Opened+res.Sold+res.Expired > 0 {
		e.logger.InfoContext(ctx, "resolution: auction sweep complete",
			slog.Int("opened", res.Opened),
			slog.Int("sold", res.Sold),
			slog.Int("expired", res.Expired),
		)
	}
	if len(errs) > 0 {
		return res, e.sweepFailed(ctx, errors.Join(errs...))
	}
	return res, nil
}

// auctionFee returns the auction house fee rule, or nil when none is
// configured.
func (e *ResolutionEngine) auctionFee(ctx context.Context) (*domain.FeeConfig, error) {
	cfg, err := e.ledger.FeeConfig(ctx, domain.FeeAuctionHouse)
	if errors.Is(err, domain.ErrUnknownFeeType) {
		e.logger.WarnContext(ctx, "resolution: auction house fee not configured, no fee recorded")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolution: auction house fee: %w", err)
	}
	return &cfg, nil
}

// auctionCloser returns the closure builder for a sweep at now. The winner,
// price and fee come from the row the store hands it, never from the listing
// that found the auction due.
func auctionCloser(fee *domain.FeeConfig, now time.Time) domain.CloseFunc {
	return func(a domain.Auction) (domain.AuctionClosure, error) {
		if a.CurrentBid <= 0 || a.CurrentBidderID == nil || a.CurrentBidderType == nil {
			return domain.AuctionClosure{Status: domain.AuctionStatusExpired}, nil
		}
		c := domain.AuctionClosure{
			Status: domain.AuctionStatusSold,
			Transfer: &domain.AssetOwnership{
				AssetRef:    a.AssetRef,
				OwnerID:     *a.CurrentBidderID,
				OwnerType:   *a.CurrentBidderType,
				AcquiredVia: a.ID,
				UpdatedAt:   now,
			},
		}
		if fee == nil {
			return c, nil
		}
		if amount := min(fee.Fee(a.CurrentBid), a.CurrentBid); amount > 0 {
			entry, err := NewLedgerEntry(domain.TxAuctionSaleFee, amount, domain.DirectionInflow, map[string]string{
				"auction_id": a.ID,
				"asset_ref":  a.AssetRef,
				"buyer_id":   *a.CurrentBidderID,
			}, now)
			if err != nil {
				return domain.AuctionClosure{}, err
			}
			c.Ledger = append(c.Ledger, entry)
		}
		return c, nil
	}
}

// closeAuction closes one due auction. It returns the empty status when the
// auction was no longer open and due by the time the store locked it.
func (e *ResolutionEngine) closeAuction(ctx context.Context, id string, fee *domain.FeeConfig, now time.Time) (domain.AuctionStatus, error) {
	var closure domain.AuctionClosure
	build := auctionCloser(fee, now)
	a, ok, err := e.auctions.Close(ctx, id, now, func(a domain.Auction) (domain.AuctionClosure, error) {
		c, err := build(a)
		closure = c
		return c, err
	})
	if err != nil {
		return "", fmt.Errorf("resolution: close auction %s: %w", id, err)
	}
	if !ok {
		return "", nil
	}

	if a.Status == domain.AuctionStatusExpired {
		e.logger.InfoContext(ctx, "resolution: auction expired",
			slog.String("auction_id", a.ID),
			slog.String("asset_ref", a.AssetRef),
		)
		e.events.publish(ctx, domain.ChannelAuctions, EventAuctionExpired, a, now)
		return a.Status, nil
	}

	e.logger.InfoContext(ctx, "resolution: auction sold",
		slog.String("auction_id", a.ID),
		slog.String("asset_ref", a.AssetRef),
		slog.String("buyer_id", closure.Transfer.OwnerID),
		slog.Int64("price", a.CurrentBid),
	)
	e.events.publish(ctx, domain.ChannelAuctions, EventAuctionSold, a, now)
	for _, entry := range closure.Ledger {
		e.events.publish(ctx, domain.ChannelLedger, EventLedgerEntry, entry, now)
	}
	notify(ctx, e.notifier, e.logger, EventAuctionSold,
		"Auction sold",
		fmt.Sprintf("%s sold to %s for %d", a.AssetRef, closure.Transfer.OwnerID, a.CurrentBid),
	)
	return a.Status, nil
}

func (e *ResolutionEngine) sweepFailed(ctx context.Context, err error) error {
	e.logger.ErrorContext(ctx, "resolution: auction sweep failed", slog.String("error", err.Error()))
	notify(ctx, e.notifier, e.logger, EventSweepFailed, "Auction sweep failed", err.Error())
	return err
}
