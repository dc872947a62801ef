package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// MarketConfig holds the market tunables.
type MarketConfig struct {
	GovernanceCooldown time.Duration
}

// CreateMarketRequest describes a new market.
type CreateMarketRequest struct {
	CreatorID string                `json:"creator_id"`
	MatchID   string                `json:"match_id,omitempty"`
	Type      domain.MarketType     `json:"type"`
	Title     string                `json:"title"`
	Options   []domain.MarketOption `json:"options"`
	LockTime  *time.Time            `json:"lock_time,omitempty"`
}

// CreateMarketResult is returned by CreateMarket.
type CreateMarketResult struct {
	Market       domain.Market `json:"market"`
	CooldownEnds time.Time     `json:"cooldown_ends"`
}

// PlaceBetRequest describes a stake on one option.
type PlaceBetRequest struct {
	MarketID   string            `json:"market_id"`
	BettorType domain.BettorType `json:"bettor_type"`
	BettorID   string            `json:"bettor_id"`
	OptionID   int               `json:"option_id"`
	Amount     int64             `json:"amount"`
}

// MarketDetail is a market together with its bets.
type MarketDetail struct {
	Market domain.Market `json:"market"`
	Bets   []domain.Bet  `json:"bets"`
}

// MarketService runs the market lifecycle: creation, betting, locking, and
// delegation of settlement to the resolution engine.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	resolver *ResolutionEngine
	cfg      MarketConfig
	events   publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewMarketService creates a MarketService. cache and bus may be nil.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	resolver *ResolutionEngine,
	cfg MarketConfig,
	logger *slog.Logger,
) *MarketService {
	logger = logger.With(slog.String("component", "market_service"))
	return &MarketService{
		markets:  markets,
		cache:    cache,
		resolver: resolver,
		cfg:      cfg,
		events:   publisher{bus: bus, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *MarketService) WithClock(now func() time.Time) *MarketService {
	s.now = now
	return s
}

// CreateMarket validates and stores an open market and starts its governance
// cooldown.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateMarketRequest) (CreateMarketResult, error) {
	if err := ValidateCreateMarket(req); err != nil {
		return CreateMarketResult{}, err
	}
	now := s.now()
	if req.LockTime != nil && !req.LockTime.After(now) {
		return CreateMarketResult{}, domain.Validationf("lock_time must be in the future")
	}

	m := domain.Market{
		ID:                        uuid.NewString(),
		CreatorID:                 req.CreatorID,
		MatchID:                   req.MatchID,
		Type:                      req.Type,
		Title:                     req.Title,
		Options:                   append([]domain.MarketOption(nil), req.Options...),
		Status:                    domain.MarketStatusOpen,
		GovernanceCooldownSeconds: int64(s.cfg.GovernanceCooldown / time.Second),
		CreatedAt:                 now,
		LockTime:                  req.LockTime,
	}
	if err := s.markets.Create(ctx, m); err != nil {
		return CreateMarketResult{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("type", string(m.Type)),
		slog.Int("options", len(m.Options)),
	)
	s.events.publish(ctx, domain.ChannelMarkets, EventMarketCreated, m, now)
	return CreateMarketResult{Market: m, CooldownEnds: m.CooldownEnds()}, nil
}

// PlaceBet records a fixed-odds stake. The potential payout is frozen from
// the option's odds at placement.
func (s *MarketService) PlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Bet, error) {
	m, err := s.markets.GetByID(ctx, req.MarketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: get market %s: %w", req.MarketID, err)
	}
	now := s.now()
	opt, err := ValidateBet(m, req, now)
	if err != nil {
		return domain.Bet{}, err
	}
	payout, ok := opt.Odds.Payout(req.Amount)
	if !ok {
		return domain.Bet{}, domain.Validationf("amount %d too large", req.Amount)
	}

	bet := domain.Bet{
		ID:              uuid.NewString(),
		MarketID:        m.ID,
		BettorType:      req.BettorType,
		BettorID:        req.BettorID,
		OptionID:        req.OptionID,
		Amount:          req.Amount,
		PotentialPayout: payout,
		Status:          domain.BetStatusActive,
		CreatedAt:       now,
	}
	updated, err := s.markets.PlaceBet(ctx, bet)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: place bet on %s: %w", m.ID, err)
	}

	s.logger.InfoContext(ctx, "market_service: bet placed",
		slog.String("market_id", m.ID),
		slog.String("bet_id", bet.ID),
		slog.Int("option_id", bet.OptionID),
		slog.Int64("amount", bet.Amount),
		slog.Int64("total_pool", updated.TotalPool),
	)
	s.events.publish(ctx, domain.ChannelBets, EventBetPlaced, bet, now)
	return bet, nil
}

// ResolveMarket settles the market against the winning option.
func (s *MarketService) ResolveMarket(ctx context.Context, marketID string, winningOptionID int) (MarketResolution, error) {
	return s.resolver.ResolveMarket(ctx, marketID, winningOptionID)
}

// CancelMarket refunds every active bet and cancels the market.
func (s *MarketService) CancelMarket(ctx context.Context, marketID string) (domain.Market, error) {
	return s.resolver.CancelMarket(ctx, marketID)
}

// LockMarket stops betting on an open market ahead of resolution.
func (s *MarketService) LockMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.markets.Lock(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: lock %s: %w", marketID, err)
	}
	s.logger.InfoContext(ctx, "market_service: market locked", slog.String("market_id", marketID))
	s.events.publish(ctx, domain.ChannelMarkets, EventMarketLocked, m, s.now())
	return m, nil
}

// GetOpenMarkets lists markets still accepting bets, newest first.
func (s *MarketService) GetOpenMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list open: %w", err)
	}
	return markets, nil
}

// GetMarketDetail returns a market and its bets. Only terminal markets are
// served from the cache, since their rows never change.
func (s *MarketService) GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error) {
	m, err := s.getMarket(ctx, marketID)
	if err != nil {
		return MarketDetail{}, err
	}
	bets, err := s.markets.ListBets(ctx, marketID)
	if err != nil {
		return MarketDetail{}, fmt.Errorf("market_service: list bets %s: %w", marketID, err)
	}
	return MarketDetail{Market: m, Bets: bets}, nil
}

func (s *MarketService) getMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	if s.cache != nil && m.Status.Terminal() {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}
