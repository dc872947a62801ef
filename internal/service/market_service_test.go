package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

func createMarket(t *testing.T, h *harness, lockTime *time.Time) domain.Market {
	t.Helper()
	res, err := h.markets.CreateMarket(context.Background(), CreateMarketRequest{
		CreatorID: "creator-1",
		Type:      domain.MarketTypeMatchWinner,
		Title:     "Who wins match 7?",
		Options:   twoOptions(),
		LockTime:  lockTime,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return res.Market
}

func placeBet(t *testing.T, h *harness, marketID string, optionID int, amount int64) domain.Bet {
	t.Helper()
	bet, err := h.markets.PlaceBet(context.Background(), PlaceBetRequest{
		MarketID:   marketID,
		BettorType: domain.BettorAgent,
		BettorID:   "agent-1",
		OptionID:   optionID,
		Amount:     amount,
	})
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	return bet
}

func TestResolveMarketPayouts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)

	bet1 := placeBet(t, h, m.ID, 1, 10)
	bet2 := placeBet(t, h, m.ID, 2, 10)
	if bet1.PotentialPayout != 20 {
		t.Errorf("bet1 potential payout: got %d, want 20", bet1.PotentialPayout)
	}
	if bet2.PotentialPayout != 30 {
		t.Errorf("bet2 potential payout: got %d, want 30", bet2.PotentialPayout)
	}

	res, err := h.markets.ResolveMarket(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	if res.DaoFee != 1 {
		t.Errorf("dao fee: got %d, want 1", res.DaoFee)
	}
	if res.Market.Status != domain.MarketStatusResolved {
		t.Errorf("status: got %s, want resolved", res.Market.Status)
	}
	if res.Market.WinningOptionID == nil || *res.Market.WinningOptionID != 1 {
		t.Errorf("winning option: got %v, want 1", res.Market.WinningOptionID)
	}
	if res.Market.FeeCollected != 1 {
		t.Errorf("fee collected: got %d, want 1", res.Market.FeeCollected)
	}

	detail, err := h.markets.GetMarketDetail(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMarketDetail: %v", err)
	}
	want := map[string]struct {
		status  domain.BetStatus
		paidOut int64
	}{
		bet1.ID: {domain.BetStatusWon, 19},
		bet2.ID: {domain.BetStatusLost, 0},
	}
	for _, b := range detail.Bets {
		w := want[b.ID]
		if b.Status != w.status || b.PaidOut != w.paidOut {
			t.Errorf("bet %s: got %s/%d, want %s/%d", b.ID, b.Status, b.PaidOut, w.status, w.paidOut)
		}
		if b.SettledAt == nil {
			t.Errorf("bet %s: settled_at not set", b.ID)
		}
	}

	totals, err := h.ledger.Balance(ctx)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if totals.Balance() != 1 {
		t.Errorf("ledger balance: got %d, want 1", totals.Balance())
	}

	// Payout plus fees never exceed what was staked.
	if res.TotalPaidOut+res.DaoFee > detail.Market.TotalPool {
		t.Errorf("paid %d + fee %d exceeds pool %d", res.TotalPaidOut, res.DaoFee, detail.Market.TotalPool)
	}
}

func TestResolveMarketUsesConfiguredHouseFee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.ledger.SetFeeConfig(ctx, domain.FeeConfig{FeeType: domain.FeeMarketHouse, Rate: 0.10}); err != nil {
		t.Fatalf("SetFeeConfig: %v", err)
	}
	m := createMarket(t, h, nil)
	placeBet(t, h, m.ID, 1, 100)

	res, err := h.markets.ResolveMarket(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	if res.TotalPaidOut != 180 {
		t.Errorf("paid out: got %d, want 180", res.TotalPaidOut)
	}
	if res.DaoFee != 10 {
		t.Errorf("dao fee: got %d, want 10", res.DaoFee)
	}
}

func TestResolveMarketIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)
	placeBet(t, h, m.ID, 1, 10)
	placeBet(t, h, m.ID, 2, 10)

	if _, err := h.markets.ResolveMarket(ctx, m.ID, 1); err != nil {
		t.Fatalf("first ResolveMarket: %v", err)
	}
	before, _ := h.ledger.ListEntries(ctx, domain.ListOpts{})

	_, err := h.markets.ResolveMarket(ctx, m.ID, 2)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second resolve: got %v, want ErrAlreadyResolved", err)
	}
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("second resolve should be a state conflict: %v", err)
	}
	if _, err := h.markets.CancelMarket(ctx, m.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("cancel after resolve: got %v, want ErrAlreadyResolved", err)
	}

	after, _ := h.ledger.ListEntries(ctx, domain.ListOpts{})
	if len(after) != len(before) {
		t.Errorf("ledger entries: got %d, want %d", len(after), len(before))
	}
	detail, _ := h.markets.GetMarketDetail(ctx, m.ID)
	if *detail.Market.WinningOptionID != 1 {
		t.Errorf("winning option changed to %d", *detail.Market.WinningOptionID)
	}
}

func TestResolveMarketUnknownOption(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)
	placeBet(t, h, m.ID, 1, 10)

	_, err := h.markets.ResolveMarket(ctx, m.ID, 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	detail, _ := h.markets.GetMarketDetail(ctx, m.ID)
	if detail.Market.Status != domain.MarketStatusOpen {
		t.Errorf("status: got %s, want open", detail.Market.Status)
	}
	if detail.Bets[0].Status != domain.BetStatusActive {
		t.Errorf("bet status: got %s, want active", detail.Bets[0].Status)
	}
}

func TestCreateMarketValidation(t *testing.T) {
	h := newHarness(t)
	past := h.clock.Now().Add(-time.Minute)

	tests := []struct {
		name string
		req  CreateMarketRequest
	}{
		{"no options", CreateMarketRequest{CreatorID: "c", Type: domain.MarketTypeMVP, Title: "t"}},
		{"duplicate option ids", CreateMarketRequest{CreatorID: "c", Type: domain.MarketTypeMVP, Title: "t",
			Options: []domain.MarketOption{{ID: 1, Odds: domain.OddsFromFloat(2)}, {ID: 1, Odds: domain.OddsFromFloat(3)}}}},
		{"odds of one", CreateMarketRequest{CreatorID: "c", Type: domain.MarketTypeMVP, Title: "t",
			Options: []domain.MarketOption{{ID: 1, Odds: domain.OddsFromFloat(1.0)}}}},
		{"unknown type", CreateMarketRequest{CreatorID: "c", Type: "coin_flip", Title: "t", Options: twoOptions()}},
		{"missing creator", CreateMarketRequest{Type: domain.MarketTypeMVP, Title: "t", Options: twoOptions()}},
		{"lock time in past", CreateMarketRequest{CreatorID: "c", Type: domain.MarketTypeMVP, Title: "t",
			Options: twoOptions(), LockTime: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.markets.CreateMarket(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestPlaceBetRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lock := h.clock.Now().Add(time.Minute)
	locked := createMarket(t, h, &lock)
	open := createMarket(t, h, nil)
	resolved := createMarket(t, h, nil)
	if _, err := h.markets.ResolveMarket(ctx, resolved.ID, 1); err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}

	tests := []struct {
		name    string
		req     PlaceBetRequest
		advance time.Duration
		want    error
	}{
		{"unknown option", PlaceBetRequest{MarketID: open.ID, BettorType: domain.BettorPlayer, BettorID: "p", OptionID: 9, Amount: 5}, 0, domain.ErrNotFound},
		{"zero amount", PlaceBetRequest{MarketID: open.ID, BettorType: domain.BettorPlayer, BettorID: "p", OptionID: 1}, 0, domain.ErrValidation},
		{"bad bettor type", PlaceBetRequest{MarketID: open.ID, BettorType: "ghost", BettorID: "p", OptionID: 1, Amount: 5}, 0, domain.ErrValidation},
		{"unknown market", PlaceBetRequest{MarketID: "nope", BettorType: domain.BettorPlayer, BettorID: "p", OptionID: 1, Amount: 5}, 0, domain.ErrNotFound},
		{"resolved market", PlaceBetRequest{MarketID: resolved.ID, BettorType: domain.BettorPlayer, BettorID: "p", OptionID: 1, Amount: 5}, 0, domain.ErrMarketClosed},
		{"at lock time", PlaceBetRequest{MarketID: locked.ID, BettorType: domain.BettorPlayer, BettorID: "p", OptionID: 1, Amount: 5}, time.Minute, domain.ErrMarketClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.clock.Advance(tt.advance)
			_, err := h.markets.PlaceBet(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLockMarketStopsBetting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)
	placeBet(t, h, m.ID, 1, 10)

	if _, err := h.markets.LockMarket(ctx, m.ID); err != nil {
		t.Fatalf("LockMarket: %v", err)
	}
	_, err := h.markets.PlaceBet(ctx, PlaceBetRequest{
		MarketID: m.ID, BettorType: domain.BettorSpectator, BettorID: "s", OptionID: 1, Amount: 5,
	})
	if !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("bet on locked market: got %v, want ErrMarketClosed", err)
	}
	if _, err := h.markets.LockMarket(ctx, m.ID); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("second lock: got %v, want ErrMarketClosed", err)
	}
	if _, err := h.markets.ResolveMarket(ctx, m.ID, 1); err != nil {
		t.Errorf("resolve locked market: %v", err)
	}
}

func TestCancelMarketRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)
	placeBet(t, h, m.ID, 1, 10)
	placeBet(t, h, m.ID, 2, 25)

	cancelled, err := h.markets.CancelMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("CancelMarket: %v", err)
	}
	if cancelled.Status != domain.MarketStatusCancelled {
		t.Errorf("status: got %s, want cancelled", cancelled.Status)
	}
	detail, _ := h.markets.GetMarketDetail(ctx, m.ID)
	for _, b := range detail.Bets {
		if b.Status != domain.BetStatusRefunded || b.PaidOut != b.Amount {
			t.Errorf("bet %s: got %s/%d, want refunded/%d", b.ID, b.Status, b.PaidOut, b.Amount)
		}
	}
	totals, _ := h.ledger.Balance(ctx)
	if totals.Inflow != 0 || totals.Outflow != 0 {
		t.Errorf("ledger should be empty after cancel: %+v", totals)
	}
}

func TestConcurrentBetsConservePool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.markets.PlaceBet(ctx, PlaceBetRequest{
				MarketID:   m.ID,
				BettorType: domain.BettorAgent,
				BettorID:   "agent",
				OptionID:   1 + i%2,
				Amount:     int64(i + 1),
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("PlaceBet: %v", err)
	}

	detail, err := h.markets.GetMarketDetail(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMarketDetail: %v", err)
	}
	var sum int64
	for _, b := range detail.Bets {
		sum += b.Amount
	}
	if len(detail.Bets) != workers {
		t.Errorf("bets: got %d, want %d", len(detail.Bets), workers)
	}
	if detail.Market.TotalPool != sum {
		t.Errorf("total pool: got %d, want %d", detail.Market.TotalPool, sum)
	}
	if sum != workers*(workers+1)/2 {
		t.Errorf("sum: got %d, want %d", sum, workers*(workers+1)/2)
	}
}

func TestGetOpenMarkets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := createMarket(t, h, nil)
	h.clock.Advance(time.Second)
	second := createMarket(t, h, nil)
	if _, err := h.markets.CancelMarket(ctx, first.ID); err != nil {
		t.Fatalf("CancelMarket: %v", err)
	}

	open, err := h.markets.GetOpenMarkets(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("GetOpenMarkets: %v", err)
	}
	if len(open) != 1 || open[0].ID != second.ID {
		t.Errorf("open markets: got %v, want [%s]", open, second.ID)
	}
}
