package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedMarket(t *testing.T, s *Store) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:     "m1",
		Type:   domain.MarketTypeMVP,
		Title:  "MVP",
		Status: domain.MarketStatusOpen,
		Options: []domain.MarketOption{
			{ID: 1, Label: "A", Odds: domain.OddsFromFloat(2)},
		},
		CreatedAt: t0,
	}
	if err := s.Markets().Create(context.Background(), m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m
}

func TestSettleWritesNothingOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := seedMarket(t, s)
	if _, err := s.Markets().PlaceBet(ctx, domain.Bet{ID: "b1", MarketID: m.ID, OptionID: 1, Amount: 5, Status: domain.BetStatusActive, CreatedAt: t0}); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Markets().Settle(ctx, m.ID, func(domain.Market, []domain.Bet) (domain.MarketSettlement, error) {
		return domain.MarketSettlement{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	_, err = s.Markets().Settle(ctx, m.ID, func(domain.Market, []domain.Bet) (domain.MarketSettlement, error) {
		return domain.MarketSettlement{
			Status:   domain.MarketStatusResolved,
			Outcomes: []domain.BetOutcome{{BetID: "ghost", Status: domain.BetStatusWon}},
			LedgerEntries: []domain.LedgerEntry{
				{ID: "e1", TxType: "x", Amount: 1, Direction: domain.DirectionInflow},
			},
		}, nil
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("unknown bet outcome: got %v, want ErrConcurrencyConflict", err)
	}

	got, _ := s.Markets().GetByID(ctx, m.ID)
	if got.Status != domain.MarketStatusOpen {
		t.Errorf("status: got %s, want open", got.Status)
	}
	if totals, _ := s.Ledger().Totals(ctx); totals.Inflow != 0 {
		t.Errorf("ledger inflow: got %d, want 0", totals.Inflow)
	}
}

func TestPlaceBetRechecksLockTime(t *testing.T) {
	ctx := context.Background()
	s := New()
	lock := t0.Add(time.Minute)
	m := domain.Market{ID: "m2", Status: domain.MarketStatusOpen, LockTime: &lock, CreatedAt: t0,
		Options: []domain.MarketOption{{ID: 1, Odds: domain.OddsFromFloat(2)}}}
	if err := s.Markets().Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := s.Markets().PlaceBet(ctx, domain.Bet{ID: "late", MarketID: m.ID, OptionID: 1, Amount: 1, CreatedAt: lock})
	if !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("got %v, want ErrMarketClosed", err)
	}
}

func TestAcceptBidCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := domain.Auction{ID: "a1", AssetRef: "x", StartingPrice: 50, AuctionEnds: t0.Add(time.Hour), Status: domain.AuctionStatusOpen, CreatedAt: t0}
	if err := s.Auctions().Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	acc := domain.BidAcceptance{
		Bid:            domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "p", BidderType: domain.BettorPlayer, Amount: 60, CreatedAt: t0},
		ExpectedBid:    0,
		ExpectedStatus: domain.AuctionStatusOpen,
		NewStatus:      domain.AuctionStatusOpen,
	}
	if _, err := s.Auctions().AcceptBid(ctx, acc); err != nil {
		t.Fatalf("first AcceptBid: %v", err)
	}

	acc.Bid.ID = "b2"
	acc.Bid.Amount = 70
	if _, err := s.Auctions().AcceptBid(ctx, acc); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("stale precondition: got %v, want ErrConcurrencyConflict", err)
	}

	acc.ExpectedBid = 60
	acc.Bid.CreatedAt = t0.Add(2 * time.Hour)
	if _, err := s.Auctions().AcceptBid(ctx, acc); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("after deadline: got %v, want ErrConcurrencyConflict", err)
	}

	bids, _ := s.Auctions().ListBids(ctx, "a1")
	if len(bids) != 1 {
		t.Errorf("bids: got %d, want 1", len(bids))
	}
}

func TestCloseIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	ends := t0.Add(time.Minute)
	a := domain.Auction{ID: "a2", AssetRef: "y", AuctionEnds: ends, Status: domain.AuctionStatusOpen, CreatedAt: t0}
	if err := s.Auctions().Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	calls := 0
	expire := func(domain.Auction) (domain.AuctionClosure, error) {
		calls++
		return domain.AuctionClosure{Status: domain.AuctionStatusExpired}, nil
	}
	if _, ok, err := s.Auctions().Close(ctx, "a2", t0, expire); err != nil || ok {
		t.Errorf("close before deadline: got %v/%v, want false/nil", ok, err)
	}
	got, ok, err := s.Auctions().Close(ctx, "a2", ends, expire)
	if err != nil || !ok {
		t.Fatalf("close at deadline: got %v/%v, want true/nil", ok, err)
	}
	if got.Status != domain.AuctionStatusExpired || got.ResolvedAt == nil || !got.ResolvedAt.Equal(ends) {
		t.Errorf("closed auction: got %s at %v, want expired at %v", got.Status, got.ResolvedAt, ends)
	}
	if _, ok, _ := s.Auctions().Close(ctx, "a2", ends, expire); ok {
		t.Error("second close reported a transition")
	}
	if calls != 1 {
		t.Errorf("closure builds: got %d, want 1", calls)
	}
	if _, _, err := s.Auctions().Close(ctx, "missing", ends, expire); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing auction: got %v, want ErrNotFound", err)
	}
}

func TestCloseBuildsFromCurrentRow(t *testing.T) {
	ctx := context.Background()
	s := New()
	ends := t0.Add(time.Minute)
	a := domain.Auction{ID: "a3", AssetRef: "z", StartingPrice: 50, AuctionEnds: ends, Status: domain.AuctionStatusOpen, CreatedAt: t0}
	if err := s.Auctions().Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	due, err := s.Auctions().ListDue(ctx, ends)
	if err != nil || len(due) != 1 || due[0].CurrentBid != 0 {
		t.Fatalf("ListDue: got %+v/%v, want one auction without bids", due, err)
	}

	// A bid at the deadline commits after the auction was listed as due.
	acc := domain.BidAcceptance{
		Bid:            domain.Bid{ID: "b1", AuctionID: "a3", BidderID: "bob", BidderType: domain.BettorPlayer, Amount: 120, CreatedAt: ends},
		ExpectedStatus: domain.AuctionStatusOpen,
		NewStatus:      domain.AuctionStatusOpen,
	}
	if _, err := s.Auctions().AcceptBid(ctx, acc); err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}

	var seen domain.Auction
	_, ok, err := s.Auctions().Close(ctx, "a3", ends, func(a domain.Auction) (domain.AuctionClosure, error) {
		seen = a
		return domain.AuctionClosure{Status: domain.AuctionStatusSold}, nil
	})
	if err != nil || !ok {
		t.Fatalf("Close: got %v/%v, want true/nil", ok, err)
	}
	if seen.CurrentBid != 120 || seen.CurrentBidderID == nil || *seen.CurrentBidderID != "bob" {
		t.Errorf("closure input: got bid %d by %v, want 120 by bob", seen.CurrentBid, seen.CurrentBidderID)
	}

	acc.Bid.ID = "b2"
	acc.Bid.Amount = 130
	acc.ExpectedBid = 120
	if _, err := s.Auctions().AcceptBid(ctx, acc); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("bid after close: got %v, want ErrConcurrencyConflict", err)
	}
}
