package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// LedgerStore implements domain.LedgerStore in memory.
type LedgerStore struct {
	s *Store
}

// Append adds an entry to the end of the ledger.
func (ls *LedgerStore) Append(_ context.Context, e domain.LedgerEntry) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()

	ls.s.ledger = append(ls.s.ledger, cloneEntry(e))
	return nil
}

// List returns entries newest first.
func (ls *LedgerStore) List(_ context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()

	var out []domain.LedgerEntry
	for i := len(ls.s.ledger) - 1; i >= 0; i-- {
		e := ls.s.ledger[i]
		if inRange(e.CreatedAt, opts) {
			out = append(out, cloneEntry(e))
		}
	}
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// ListRange returns entries with from <= created_at < before, oldest first.
func (ls *LedgerStore) ListRange(_ context.Context, from, before time.Time) ([]domain.LedgerEntry, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()

	var out []domain.LedgerEntry
	for _, e := range ls.s.ledger {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(before) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Totals sums every entry by direction.
func (ls *LedgerStore) Totals(_ context.Context) (domain.LedgerTotals, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()

	var t domain.LedgerTotals
	for _, e := range ls.s.ledger {
		switch e.Direction {
		case domain.DirectionInflow:
			t.Inflow += e.Amount
		case domain.DirectionOutflow:
			t.Outflow += e.Amount
		default:
			return domain.LedgerTotals{}, fmt.Errorf("memory: ledger entry %s: unknown direction %q", e.ID, e.Direction)
		}
	}
	return t, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
