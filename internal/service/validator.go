package service

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// maxOptions bounds the option list of a single market.
const maxOptions = 64

// ValidateCreateMarket checks a market definition before it is stored.
func ValidateCreateMarket(req CreateMarketRequest) error {
	if req.CreatorID == "" {
		return domain.Validationf("creator_id is required")
	}
	if !req.Type.Valid() {
		return domain.Validationf("unknown market type %q", req.Type)
	}
	if req.Title == "" {
		return domain.Validationf("title is required")
	}
	if len(req.Options) == 0 {
		return domain.Validationf("at least one option is required")
	}
	if len(req.Options) > maxOptions {
		return domain.Validationf("too many options: %d > %d", len(req.Options), maxOptions)
	}
	seen := make(map[int]bool, len(req.Options))
	for _, o := range req.Options {
		if seen[o.ID] {
			return domain.Validationf("duplicate option id %d", o.ID)
		}
		seen[o.ID] = true
		if o.Odds <= domain.Odds(domain.OddsScale) {
			return domain.Validationf("option %d: odds must be greater than 1.0", o.ID)
		}
	}
	return nil
}

// ValidateBet checks a stake against a market snapshot. The store repeats the
// status and lock-time check inside its write.
func ValidateBet(m domain.Market, req PlaceBetRequest, now time.Time) (domain.MarketOption, error) {
	if !req.BettorType.Valid() {
		return domain.MarketOption{}, domain.Validationf("unknown bettor type %q", req.BettorType)
	}
	if req.BettorID == "" {
		return domain.MarketOption{}, domain.Validationf("bettor_id is required")
	}
	if !m.AcceptsBets(now) {
		return domain.MarketOption{}, domain.ErrMarketClosed
	}
	opt, ok := m.Option(req.OptionID)
	if !ok {
		return domain.MarketOption{}, fmt.Errorf("option %d: %w", req.OptionID, domain.ErrNotFound)
	}
	if req.Amount <= 0 {
		return domain.MarketOption{}, domain.Validationf("amount must be positive")
	}
	return opt, nil
}

// EffectiveAuctionStatus folds an elapsed loyalty window into open without
// waiting for the sweep to persist it.
func EffectiveAuctionStatus(a domain.Auction, now time.Time) domain.AuctionStatus {
	if a.Status == domain.AuctionStatusLoyaltyWindow &&
		a.LoyaltyWindowEnds != nil && !now.Before(*a.LoyaltyWindowEnds) {
		return domain.AuctionStatusOpen
	}
	return a.Status
}

// BidCheck is the outcome of a successful bid validation.
type BidCheck struct {
	MinBid  int64
	Loyalty bool
	// Status is the effective status the bid is accepted under.
	Status domain.AuctionStatus
}

// ValidateBid checks a bid against an auction snapshot.
func ValidateBid(a domain.Auction, req PlaceBidRequest, now time.Time, minIncrement int64) (BidCheck, error) {
	if !req.BidderType.Valid() {
		return BidCheck{}, domain.Validationf("unknown bidder type %q", req.BidderType)
	}
	if req.BidderID == "" {
		return BidCheck{}, domain.Validationf("bidder_id is required")
	}
	if req.Amount <= 0 {
		return BidCheck{}, domain.Validationf("amount must be positive")
	}
	if a.Status.Terminal() || now.After(a.AuctionEnds) {
		return BidCheck{}, domain.ErrAuctionClosed
	}

	check := BidCheck{Status: EffectiveAuctionStatus(a, now)}
	if check.Status == domain.AuctionStatusLoyaltyWindow {
		if a.OwnerFactionID == nil || req.BidderFactionID == nil || *req.BidderFactionID != *a.OwnerFactionID {
			return BidCheck{}, domain.ErrLoyaltyWindowActive
		}
		check.Loyalty = true
	}

	check.MinBid = max(a.StartingPrice, a.CurrentBid+minIncrement)
	if req.Amount < check.MinBid {
		return BidCheck{}, fmt.Errorf("%w: amount %d, minimum %d", domain.ErrBidTooLow, req.Amount, check.MinBid)
	}
	return check, nil
}
