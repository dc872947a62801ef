package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// MarketStore implements domain.MarketStore in memory.
type MarketStore struct {
	s *Store
}

// Create inserts a new market.
func (ms *MarketStore) Create(_ context.Context, m domain.Market) error {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	if _, ok := ms.s.markets[m.ID]; ok {
		return fmt.Errorf("memory: create market %s: %w", m.ID, domain.Validationf("duplicate market id"))
	}
	c := cloneMarket(&m)
	ms.s.markets[m.ID] = &c
	ms.s.marketSeq[m.ID] = ms.s.nextSeq()
	return nil
}

// GetByID retrieves a market by id.
func (ms *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

// ListOpen returns open markets, newest first.
func (ms *MarketStore) ListOpen(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	open := ms.openSortedLocked()
	var filtered []domain.Market
	for _, m := range open {
		if inRange(m.CreatedAt, opts) {
			filtered = append(filtered, m)
		}
	}
	start, end := page(len(filtered), opts)
	return filtered[start:end], nil
}

// LatestOpen returns the most recently created open market.
func (ms *MarketStore) LatestOpen(_ context.Context) (domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	open := ms.openSortedLocked()
	if len(open) == 0 {
		return domain.Market{}, domain.ErrNotFound
	}
	return open[0], nil
}

// openSortedLocked returns clones of open markets ordered by creation time
// descending, insertion order breaking ties. Caller holds the lock.
func (ms *MarketStore) openSortedLocked() []domain.Market {
	var out []domain.Market
	for _, m := range ms.s.markets {
		if m.Status == domain.MarketStatusOpen {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return ms.s.marketSeq[out[i].ID] > ms.s.marketSeq[out[j].ID]
	})
	return out
}

// ListBets returns every bet on a market in placement order.
func (ms *MarketStore) ListBets(_ context.Context, marketID string) ([]domain.Bet, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	if _, ok := ms.s.markets[marketID]; !ok {
		return nil, domain.ErrNotFound
	}
	bets := ms.s.bets[marketID]
	out := make([]domain.Bet, 0, len(bets))
	for _, b := range bets {
		out = append(out, *b)
	}
	return out, nil
}

// PlaceBet inserts the bet and grows the pool if the market still accepts bets.
func (ms *MarketStore) PlaceBet(_ context.Context, bet domain.Bet) (domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.markets[bet.MarketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	if !m.AcceptsBets(bet.CreatedAt) {
		return domain.Market{}, domain.ErrMarketClosed
	}
	if _, ok := m.Option(bet.OptionID); !ok {
		return domain.Market{}, fmt.Errorf("memory: option %d: %w", bet.OptionID, domain.ErrNotFound)
	}

	b := bet
	ms.s.bets[bet.MarketID] = append(ms.s.bets[bet.MarketID], &b)
	m.TotalPool += bet.Amount
	return cloneMarket(m), nil
}

// Lock moves an open market to locked.
func (ms *MarketStore) Lock(_ context.Context, id string) (domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	switch {
	case m.Status.Terminal():
		return domain.Market{}, domain.ErrAlreadyResolved
	case m.Status != domain.MarketStatusOpen:
		return domain.Market{}, domain.ErrMarketClosed
	}
	m.Status = domain.MarketStatusLocked
	return cloneMarket(m), nil
}

// Settle commits the settlement fn computes over the market's active bets.
// Nothing is written unless fn succeeds and every outcome names an active bet.
func (ms *MarketStore) Settle(_ context.Context, id string, fn domain.SettleFunc) (domain.Market, error) {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	if m.Status.Terminal() {
		return domain.Market{}, domain.ErrAlreadyResolved
	}

	active := make([]domain.Bet, 0)
	byID := make(map[string]*domain.Bet)
	for _, b := range ms.s.bets[id] {
		if b.Status == domain.BetStatusActive {
			active = append(active, *b)
			byID[b.ID] = b
		}
	}

	st, err := fn(cloneMarket(m), active)
	if err != nil {
		return domain.Market{}, err
	}
	if !st.Status.Terminal() {
		return domain.Market{}, fmt.Errorf("memory: settle market %s: non-terminal status %q", id, st.Status)
	}
	for _, o := range st.Outcomes {
		if _, ok := byID[o.BetID]; !ok {
			return domain.Market{}, fmt.Errorf("memory: settle market %s: bet %s is not active: %w", id, o.BetID, domain.ErrConcurrencyConflict)
		}
	}

	settledAt := st.SettledAt
	for _, o := range st.Outcomes {
		b := byID[o.BetID]
		b.Status = o.Status
		b.PaidOut = o.PaidOut
		b.SettledAt = &settledAt
	}
	for _, e := range st.LedgerEntries {
		ms.s.ledger = append(ms.s.ledger, cloneEntry(e))
	}
	m.Status = st.Status
	m.FeeCollected = st.FeeCollected
	if st.WinningOptionID != nil {
		w := *st.WinningOptionID
		m.WinningOptionID = &w
	}
	m.ResolvedAt = &settledAt
	return cloneMarket(m), nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
