package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	store    *memory.Store
	clock    *fakeClock
	ledger   *LedgerService
	engine   *ResolutionEngine
	markets  *MarketService
	auctions *AuctionService
	governor *Governor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	clock := newFakeClock()

	ledger := NewLedgerService(st.Ledger(), st.Fees(), nil, logger).WithClock(clock.Now).WithAuditLog(st.Audit())
	engine := NewResolutionEngine(st.Markets(), st.Auctions(), ledger, ResolutionConfig{
		HouseFeeRate: 0.05,
	}, logger).WithClock(clock.Now).WithAuditLog(st.Audit())
	markets := NewMarketService(st.Markets(), nil, nil, engine, MarketConfig{
		GovernanceCooldown: 5 * time.Minute,
	}, logger).WithClock(clock.Now)
	auctions := NewAuctionService(st.Auctions(), nil, engine, AuctionConfig{
		BasePrice:       50,
		ReputationNorm:  300,
		MinIncrement:    10,
		LoyaltyDuration: 2 * time.Minute,
		AuctionDuration: 10 * time.Minute,
		MaxBidAttempts:  3,
	}, logger).WithClock(clock.Now)
	governor := NewGovernor(st.Markets(), logger).WithClock(clock.Now)

	return &harness{
		store:    st,
		clock:    clock,
		ledger:   ledger,
		engine:   engine,
		markets:  markets,
		auctions: auctions,
		governor: governor,
	}
}

func twoOptions() []domain.MarketOption {
	return []domain.MarketOption{
		{ID: 1, Label: "A", Odds: domain.OddsFromFloat(2.0)},
		{ID: 2, Label: "B", Odds: domain.OddsFromFloat(3.0)},
	}
}

func int64Ptr(v int64) *int64 { return &v }
