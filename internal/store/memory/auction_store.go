package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// AuctionStore implements domain.AuctionStore in memory.
type AuctionStore struct {
	s *Store
}

// Create inserts a new auction.
func (as *AuctionStore) Create(_ context.Context, a domain.Auction) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	if _, ok := as.s.auctions[a.ID]; ok {
		return fmt.Errorf("memory: create auction %s: %w", a.ID, domain.Validationf("duplicate auction id"))
	}
	c := cloneAuction(&a)
	as.s.auctions[a.ID] = &c
	as.s.auctionSeq[a.ID] = as.s.nextSeq()
	return nil
}

// GetByID retrieves an auction by id.
func (as *AuctionStore) GetByID(_ context.Context, id string) (domain.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	a, ok := as.s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return cloneAuction(a), nil
}

// ListActive returns biddable auctions ordered by deadline, soonest first.
func (as *AuctionStore) ListActive(_ context.Context, now time.Time, opts domain.ListOpts) ([]domain.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	out := as.filterLocked(func(a *domain.Auction) bool {
		return !a.Status.Terminal() && !now.After(a.AuctionEnds) && inRange(a.CreatedAt, opts)
	})
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// ListBids returns accepted bids in acceptance order.
func (as *AuctionStore) ListBids(_ context.Context, auctionID string) ([]domain.Bid, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	if _, ok := as.s.auctions[auctionID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Bid(nil), as.s.bids[auctionID]...), nil
}

// AcceptBid applies the bid only if the stored auction still matches the
// caller's precondition.
func (as *AuctionStore) AcceptBid(_ context.Context, acc domain.BidAcceptance) (domain.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	a, ok := as.s.auctions[acc.Bid.AuctionID]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	if a.Status != acc.ExpectedStatus ||
		a.CurrentBid != acc.ExpectedBid ||
		acc.Bid.CreatedAt.After(a.AuctionEnds) ||
		acc.Bid.Amount <= a.CurrentBid {
		return domain.Auction{}, domain.ErrConcurrencyConflict
	}

	bidderID := acc.Bid.BidderID
	bidderType := acc.Bid.BidderType
	as.s.bids[a.ID] = append(as.s.bids[a.ID], acc.Bid)
	a.CurrentBid = acc.Bid.Amount
	a.CurrentBidderID = &bidderID
	a.CurrentBidderType = &bidderType
	a.TotalBids++
	a.Status = acc.NewStatus
	return cloneAuction(a), nil
}

// ListLoyaltyElapsed returns loyalty-window auctions whose window has ended.
func (as *AuctionStore) ListLoyaltyElapsed(_ context.Context, now time.Time) ([]domain.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	return as.filterLocked(func(a *domain.Auction) bool {
		return a.Status == domain.AuctionStatusLoyaltyWindow &&
			a.LoyaltyWindowEnds != nil && !now.Before(*a.LoyaltyWindowEnds)
	}), nil
}

// ListDue returns open auctions at or past their deadline.
func (as *AuctionStore) ListDue(_ context.Context, now time.Time) ([]domain.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	return as.filterLocked(func(a *domain.Auction) bool {
		return a.Status == domain.AuctionStatusOpen && !now.Before(a.AuctionEnds)
	}), nil
}

// OpenLoyalty transitions an elapsed loyalty window to open.
func (as *AuctionStore) OpenLoyalty(_ context.Context, id string, now time.Time) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	a, ok := as.s.auctions[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.Status != domain.AuctionStatusLoyaltyWindow || a.LoyaltyWindowEnds == nil || now.Before(*a.LoyaltyWindowEnds) {
		return false, nil
	}
	a.Status = domain.AuctionStatusOpen
	return true, nil
}

// Close builds the closure from the auction under the store lock and applies
// it, including the ownership transfer and ledger entries, if the auction is
// still open and due at closedAt.
func (as *AuctionStore) Close(_ context.Context, id string, closedAt time.Time, fn domain.CloseFunc) (domain.Auction, bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	a, ok := as.s.auctions[id]
	if !ok {
		return domain.Auction{}, false, domain.ErrNotFound
	}
	if a.Status != domain.AuctionStatusOpen || closedAt.Before(a.AuctionEnds) {
		return cloneAuction(a), false, nil
	}
	c, err := fn(cloneAuction(a))
	if err != nil {
		return domain.Auction{}, false, err
	}
	if !c.Status.Terminal() {
		return domain.Auction{}, false, fmt.Errorf("memory: close auction %s: non-terminal status %q", id, c.Status)
	}

	a.Status = c.Status
	a.ResolvedAt = &closedAt
	if c.Transfer != nil {
		as.s.owners[c.Transfer.AssetRef] = *c.Transfer
	}
	for _, e := range c.Ledger {
		as.s.ledger = append(as.s.ledger, cloneEntry(e))
	}
	return cloneAuction(a), true, nil
}

// GetOwner returns the current owner of an asset.
func (as *AuctionStore) GetOwner(_ context.Context, assetRef string) (domain.AssetOwnership, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	o, ok := as.s.owners[assetRef]
	if !ok {
		return domain.AssetOwnership{}, domain.ErrNotFound
	}
	return o, nil
}

// filterLocked returns clones of matching auctions ordered by deadline, then
// insertion. Caller holds the lock.
func (as *AuctionStore) filterLocked(keep func(*domain.Auction) bool) []domain.Auction {
	var out []domain.Auction
	for _, a := range as.s.auctions {
		if keep(a) {
			out = append(out, cloneAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AuctionEnds.Equal(out[j].AuctionEnds) {
			return out[i].AuctionEnds.Before(out[j].AuctionEnds)
		}
		return as.s.auctionSeq[out[i].ID] < as.s.auctionSeq[out[j].ID]
	})
	return out
}

var _ domain.AuctionStore = (*AuctionStore)(nil)
