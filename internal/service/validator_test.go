package service

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

func TestValidateCreateMarket(t *testing.T) {
	valid := CreateMarketRequest{
		CreatorID: "gm",
		Type:      domain.MarketTypeMatchWinner,
		Title:     "Who wins round 3?",
		Options: []domain.MarketOption{
			{ID: 1, Label: "red", Odds: domain.OddsFromFloat(1.9)},
			{ID: 2, Label: "blue", Odds: domain.OddsFromFloat(2.1)},
		},
	}

	tests := []struct {
		name   string
		mutate func(r *CreateMarketRequest)
		ok     bool
	}{
		{"valid", func(r *CreateMarketRequest) {}, true},
		{"missing creator", func(r *CreateMarketRequest) { r.CreatorID = "" }, false},
		{"unknown type", func(r *CreateMarketRequest) { r.Type = "coin_flip" }, false},
		{"no options", func(r *CreateMarketRequest) { r.Options = nil }, false},
		{"duplicate option id", func(r *CreateMarketRequest) {
			r.Options = []domain.MarketOption{r.Options[0], r.Options[0]}
		}, false},
		{"odds of exactly one", func(r *CreateMarketRequest) {
			r.Options = []domain.MarketOption{{ID: 1, Odds: domain.Odds(domain.OddsScale)}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Options = append([]domain.MarketOption(nil), valid.Options...)
			tt.mutate(&req)
			err := ValidateCreateMarket(req)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestValidateBet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lock := now.Add(time.Minute)
	past := now.Add(-time.Second)
	m := domain.Market{
		Status:   domain.MarketStatusOpen,
		Options:  []domain.MarketOption{{ID: 1, Odds: domain.OddsFromFloat(2)}},
		LockTime: &lock,
	}
	req := PlaceBetRequest{BettorType: domain.BettorPlayer, BettorID: "p1", OptionID: 1, Amount: 10}

	if _, err := ValidateBet(m, req, now); err != nil {
		t.Fatalf("valid bet rejected: %v", err)
	}

	locked := m
	locked.LockTime = &past
	if _, err := ValidateBet(locked, req, now); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("past lock time: got %v, want ErrMarketClosed", err)
	}

	bad := req
	bad.OptionID = 9
	if _, err := ValidateBet(m, bad, now); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown option: got %v, want ErrNotFound", err)
	}

	bad = req
	bad.Amount = 0
	if _, err := ValidateBet(m, bad, now); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero amount: got %v, want ErrValidation", err)
	}
}

func TestValidateBid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	windowEnds := now.Add(time.Minute)
	base := domain.Auction{
		OwnerFactionID:    int64Ptr(7),
		StartingPrice:     100,
		LoyaltyWindowEnds: &windowEnds,
		AuctionEnds:       now.Add(10 * time.Minute),
		Status:            domain.AuctionStatusLoyaltyWindow,
	}

	tests := []struct {
		name        string
		at          time.Time
		current     int64
		faction     *int64
		amount      int64
		wantErr     error
		wantMin     int64
		wantLoyalty bool
	}{
		{name: "owner bids in window", at: now, faction: int64Ptr(7), amount: 100, wantMin: 100, wantLoyalty: true},
		{name: "outsider in window", at: now, faction: int64Ptr(8), amount: 500, wantErr: domain.ErrLoyaltyWindowActive},
		{name: "no faction in window", at: now, amount: 500, wantErr: domain.ErrLoyaltyWindowActive},
		{name: "window elapsed opens lazily", at: windowEnds, amount: 100, wantMin: 100},
		{name: "below increment", at: windowEnds, current: 120, amount: 125, wantErr: domain.ErrBidTooLow},
		{name: "at increment", at: windowEnds, current: 120, amount: 130, wantMin: 130},
		{name: "at deadline", at: now.Add(10 * time.Minute), amount: 100, wantMin: 100},
		{name: "after deadline", at: now.Add(10*time.Minute + time.Nanosecond), amount: 100, wantErr: domain.ErrAuctionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			a.CurrentBid = tt.current
			req := PlaceBidRequest{BidderID: "b", BidderType: domain.BettorAgent, BidderFactionID: tt.faction, Amount: tt.amount}

			check, err := ValidateBid(a, req, tt.at, 10)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if check.MinBid != tt.wantMin {
				t.Errorf("min bid: got %d, want %d", check.MinBid, tt.wantMin)
			}
			if check.Loyalty != tt.wantLoyalty {
				t.Errorf("loyalty: got %v, want %v", check.Loyalty, tt.wantLoyalty)
			}
		})
	}
}

func TestValidateBidTerminal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := domain.Auction{Status: domain.AuctionStatusSold, AuctionEnds: now.Add(time.Hour), StartingPrice: 1}
	req := PlaceBidRequest{BidderID: "b", BidderType: domain.BettorPlayer, Amount: 50}
	if _, err := ValidateBid(a, req, now, 10); !errors.Is(err, domain.ErrAuctionClosed) {
		t.Errorf("got %v, want ErrAuctionClosed", err)
	}
}
