package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// AuctionConfig holds the auction pricing and timing constants.
type AuctionConfig struct {
	BasePrice       int64
	ReputationNorm  float64
	MinIncrement    int64
	LoyaltyDuration time.Duration
	AuctionDuration time.Duration
	// MaxBidAttempts bounds re-validation after a lost compare-and-set.
	MaxBidAttempts int
}

// StartAuctionRequest describes an asset put up for auction.
type StartAuctionRequest struct {
	AssetRef        string  `json:"asset_ref"`
	OwnerFactionID  *int64  `json:"owner_faction_id,omitempty"`
	ReputationScore float64 `json:"reputation_score"`
}

// PlaceBidRequest describes a bid. BidderFactionID is compared with the
// auction's owner faction during the loyalty window.
type PlaceBidRequest struct {
	AuctionID       string            `json:"auction_id"`
	BidderID        string            `json:"bidder_id"`
	BidderType      domain.BettorType `json:"bidder_type"`
	BidderFactionID *int64            `json:"bidder_faction_id,omitempty"`
	Amount          int64             `json:"amount"`
}

// BidResult is an accepted bid and the auction after it.
type BidResult struct {
	Bid     domain.Bid     `json:"bid"`
	Auction domain.Auction `json:"auction"`
}

// AuctionService runs auctions: start, bidding, and queries. Closing is done
// by the resolution engine's sweep.
type AuctionService struct {
	auctions domain.AuctionStore
	resolver *ResolutionEngine
	cfg      AuctionConfig
	events   publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuctionService creates an AuctionService. bus may be nil.
func NewAuctionService(
	auctions domain.AuctionStore,
	bus domain.SignalBus,
	resolver *ResolutionEngine,
	cfg AuctionConfig,
	logger *slog.Logger,
) *AuctionService {
	if cfg.MaxBidAttempts <= 0 {
		cfg.MaxBidAttempts = 3
	}
	if cfg.ReputationNorm <= 0 {
		cfg.ReputationNorm = 1
	}
	logger = logger.With(slog.String("component", "auction_service"))
	return &AuctionService{
		auctions: auctions,
		resolver: resolver,
		cfg:      cfg,
		events:   publisher{bus: bus, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *AuctionService) WithClock(now func() time.Time) *AuctionService {
	s.now = now
	return s
}

// StartingPrice returns round(base * max(1, reputation / norm)).
func (s *AuctionService) StartingPrice(reputation float64) int64 {
	mult := math.Max(1, reputation/s.cfg.ReputationNorm)
	return int64(math.Round(float64(s.cfg.BasePrice) * mult))
}

// StartAuction opens an auction on the asset. With an owner faction it starts
// in the loyalty window, during which only that faction may bid.
func (s *AuctionService) StartAuction(ctx context.Context, req StartAuctionRequest) (domain.Auction, error) {
	if req.AssetRef == "" {
		return domain.Auction{}, domain.Validationf("asset_ref is required")
	}
	if math.IsNaN(req.ReputationScore) || math.IsInf(req.ReputationScore, 0) || req.ReputationScore < 0 {
		return domain.Auction{}, domain.Validationf("reputation_score must be a non-negative number")
	}

	now := s.now()
	a := domain.Auction{
		ID:              uuid.NewString(),
		AssetRef:        req.AssetRef,
		OwnerFactionID:  req.OwnerFactionID,
		ReputationScore: req.ReputationScore,
		StartingPrice:   s.StartingPrice(req.ReputationScore),
		AuctionEnds:     now.Add(s.cfg.AuctionDuration),
		Status:          domain.AuctionStatusOpen,
		CreatedAt:       now,
	}
	if req.OwnerFactionID != nil {
		ends := now.Add(s.cfg.LoyaltyDuration)
		a.LoyaltyWindowEnds = &ends
		a.Status = domain.AuctionStatusLoyaltyWindow
	}

	if err := s.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: create: %w", err)
	}
	s.logger.InfoContext(ctx, "auction_service: auction started",
		slog.String("auction_id", a.ID),
		slog.String("asset_ref", a.AssetRef),
		slog.Int64("starting_price", a.StartingPrice),
		slog.String("status", string(a.Status)),
	)
	s.events.publish(ctx, domain.ChannelAuctions, EventAuctionStarted, a, now)
	return a, nil
}

// PlaceBid validates and applies a bid with compare-and-set on the current
// bid. A bidder that loses the race re-reads the auction and is re-validated,
// so a stale amount ends in ErrBidTooLow.
func (s *AuctionService) PlaceBid(ctx context.Context, req PlaceBidRequest) (BidResult, error) {
	for attempt := 1; attempt <= s.cfg.MaxBidAttempts; attempt++ {
		a, err := s.auctions.GetByID(ctx, req.AuctionID)
		if err != nil {
			return BidResult{}, fmt.Errorf("auction_service: get auction %s: %w", req.AuctionID, err)
		}
		now := s.now()
		check, err := ValidateBid(a, req, now, s.cfg.MinIncrement)
		if err != nil {
			return BidResult{}, err
		}

		bid := domain.Bid{
			ID:           uuid.NewString(),
			AuctionID:    a.ID,
			BidderID:     req.BidderID,
			BidderType:   req.BidderType,
			Amount:       req.Amount,
			IsLoyaltyBid: check.Loyalty,
			CreatedAt:    now,
		}
		updated, err := s.auctions.AcceptBid(ctx, domain.BidAcceptance{
			Bid:            bid,
			ExpectedBid:    a.CurrentBid,
			ExpectedStatus: a.Status,
			NewStatus:      check.Status,
		})
		if domain.IsRetryable(err) {
			s.logger.DebugContext(ctx, "auction_service: bid lost race, retrying",
				slog.String("auction_id", a.ID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return BidResult{}, fmt.Errorf("auction_service: accept bid on %s: %w", a.ID, err)
		}

		s.logger.InfoContext(ctx, "auction_service: bid accepted",
			slog.String("auction_id", a.ID),
			slog.String("bidder_id", bid.BidderID),
			slog.Int64("amount", bid.Amount),
			slog.Bool("loyalty", bid.IsLoyaltyBid),
		)
		s.events.publish(ctx, domain.ChannelBids, EventBidAccepted, bid, now)
		return BidResult{Bid: bid, Auction: updated}, nil
	}
	return BidResult{}, fmt.Errorf("auction_service: bid on %s after %d attempts: %w",
		req.AuctionID, s.cfg.MaxBidAttempts, domain.ErrConcurrencyConflict)
}

// ResolveAuctions runs one auction sweep.
func (s *AuctionService) ResolveAuctions(ctx context.Context) (SweepResult, error) {
	return s.resolver.ResolveAuctions(ctx)
}

// GetAuction returns one auction with its effective status.
func (s *AuctionService) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: get %s: %w", id, err)
	}
	a.Status = EffectiveAuctionStatus(a, s.now())
	return a, nil
}

// GetActiveAuctions lists auctions still taking bids, soonest deadline first.
func (s *AuctionService) GetActiveAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	now := s.now()
	auctions, err := s.auctions.ListActive(ctx, now, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list active: %w", err)
	}
	for i := range auctions {
		auctions[i].Status = EffectiveAuctionStatus(auctions[i], now)
	}
	return auctions, nil
}

// GetAuctionBids returns every accepted bid in acceptance order.
func (s *AuctionService) GetAuctionBids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	bids, err := s.auctions.ListBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list bids %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetAssetOwner returns who currently holds the asset.
func (s *AuctionService) GetAssetOwner(ctx context.Context, assetRef string) (domain.AssetOwnership, error) {
	o, err := s.auctions.GetOwner(ctx, assetRef)
	if err != nil {
		return domain.AssetOwnership{}, fmt.Errorf("auction_service: owner of %s: %w", assetRef, err)
	}
	return o, nil
}
