// Package memory implements the domain store interfaces in process memory.
// It backs the "memory" storage mode and the service tests. Every mutating
// method runs under a single mutex, which gives the same all-or-nothing
// guarantees the PostgreSQL transactions provide.
package memory

import (
	"sync"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// Store holds every table. Use the accessor methods to obtain the typed
// store views; they share one lock so cross-table writes stay atomic.
type Store struct {
	mu sync.Mutex

	markets    map[string]*domain.Market
	marketSeq  map[string]int64 // market id -> insertion sequence
	bets       map[string][]*domain.Bet
	auctions   map[string]*domain.Auction
	auctionSeq map[string]int64
	bids       map[string][]domain.Bid
	owners     map[string]domain.AssetOwnership
	ledger     []domain.LedgerEntry
	fees       map[string]domain.FeeConfig
	audit      []domain.AuditEntry
	seq        int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		markets:    make(map[string]*domain.Market),
		marketSeq:  make(map[string]int64),
		bets:       make(map[string][]*domain.Bet),
		auctions:   make(map[string]*domain.Auction),
		auctionSeq: make(map[string]int64),
		bids:       make(map[string][]domain.Bid),
		owners:     make(map[string]domain.AssetOwnership),
		fees:       make(map[string]domain.FeeConfig),
	}
}

// Markets returns the domain.MarketStore view.
func (s *Store) Markets() *MarketStore { return &MarketStore{s: s} }

// Auctions returns the domain.AuctionStore view.
func (s *Store) Auctions() *AuctionStore { return &AuctionStore{s: s} }

// Ledger returns the domain.LedgerStore view.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Fees returns the domain.FeeConfigStore view.
func (s *Store) Fees() *FeeConfigStore { return &FeeConfigStore{s: s} }

// Audit returns the domain.AuditStore view.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// Close is a no-op kept so the memory store has the same lifecycle as the
// PostgreSQL client.
func (s *Store) Close() {}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// page applies offset/limit to n items and returns the index bounds.
func page(n int, opts domain.ListOpts) (int, int) {
	start := opts.Offset
	if start > n {
		start = n
	}
	end := n
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return start, end
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func cloneMarket(m *domain.Market) domain.Market {
	out := *m
	out.Options = append([]domain.MarketOption(nil), m.Options...)
	if m.WinningOptionID != nil {
		v := *m.WinningOptionID
		out.WinningOptionID = &v
	}
	if m.LockTime != nil {
		v := *m.LockTime
		out.LockTime = &v
	}
	if m.ResolvedAt != nil {
		v := *m.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}

func cloneAuction(a *domain.Auction) domain.Auction {
	out := *a
	if a.OwnerFactionID != nil {
		v := *a.OwnerFactionID
		out.OwnerFactionID = &v
	}
	if a.CurrentBidderID != nil {
		v := *a.CurrentBidderID
		out.CurrentBidderID = &v
	}
	if a.CurrentBidderType != nil {
		v := *a.CurrentBidderType
		out.CurrentBidderType = &v
	}
	if a.LoyaltyWindowEnds != nil {
		v := *a.LoyaltyWindowEnds
		out.LoyaltyWindowEnds = &v
	}
	if a.ResolvedAt != nil {
		v := *a.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}

func cloneEntry(e domain.LedgerEntry) domain.LedgerEntry {
	if e.RelatedRefs != nil {
		refs := make(map[string]string, len(e.RelatedRefs))
		for k, v := range e.RelatedRefs {
			refs[k] = v
		}
		e.RelatedRefs = refs
	}
	return e
}
