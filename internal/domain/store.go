package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets and their bets. PlaceBet, Lock and Settle are
// the only mutating paths after Create, and each re-checks the market status
// inside its own transaction.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	// LatestOpen returns the most recently created market still open.
	LatestOpen(ctx context.Context) (Market, error)
	ListBets(ctx context.Context, marketID string) ([]Bet, error)
	// PlaceBet inserts bet and adds its amount to the pool in one transaction,
	// only if the market still accepts bets at bet.CreatedAt. It returns the
	// updated market.
	PlaceBet(ctx context.Context, bet Bet) (Market, error)
	// Lock moves an open market to locked.
	Lock(ctx context.Context, id string) (Market, error)
	// Settle locks the market, rejects terminal markets with
	// ErrAlreadyResolved, and commits the settlement computed by fn over the
	// bets still active.
	Settle(ctx context.Context, id string, fn SettleFunc) (Market, error)
}

// AuctionStore persists auctions, their bids, and asset ownership.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	// ListActive returns non-terminal auctions whose deadline is after now.
	ListActive(ctx context.Context, now time.Time, opts ListOpts) ([]Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]Bid, error)
	// AcceptBid applies a compare-and-set bid. It returns
	// ErrConcurrencyConflict when the precondition no longer holds.
	AcceptBid(ctx context.Context, acc BidAcceptance) (Auction, error)
	// ListLoyaltyElapsed returns loyalty_window auctions whose window ended at or before now.
	ListLoyaltyElapsed(ctx context.Context, now time.Time) ([]Auction, error)
	// ListDue returns open auctions whose deadline is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Auction, error)
	// OpenLoyalty moves a loyalty_window auction to open if its window has
	// elapsed. It reports whether this call made the transition.
	OpenLoyalty(ctx context.Context, id string, now time.Time) (bool, error)
	// Close locks the auction and, if it is still open and its deadline is
	// at or before closedAt, applies the closure fn builds from the locked
	// row. It returns the auction as left by the call and reports whether
	// this call made the transition.
	Close(ctx context.Context, id string, closedAt time.Time, fn CloseFunc) (Auction, bool, error)
	GetOwner(ctx context.Context, assetRef string) (AssetOwnership, error)
}

// LedgerStore persists the append-only ledger.
type LedgerStore interface {
	Append(ctx context.Context, e LedgerEntry) error
	List(ctx context.Context, opts ListOpts) ([]LedgerEntry, error)
	// ListRange returns entries with from <= created_at < before, oldest
	// first. A zero from has no lower bound.
	ListRange(ctx context.Context, from, before time.Time) ([]LedgerEntry, error)
	Totals(ctx context.Context) (LedgerTotals, error)
}

// FeeConfigStore persists fee rules keyed by fee type.
type FeeConfigStore interface {
	Get(ctx context.Context, feeType string) (FeeConfig, error)
	Upsert(ctx context.Context, cfg FeeConfig) error
	// InsertIfAbsent stores cfg unless its fee type is already configured.
	InsertIfAbsent(ctx context.Context, cfg FeeConfig) (bool, error)
	List(ctx context.Context) ([]FeeConfig, error)
}

// Audit event names.
const (
	AuditFeeUpdated      = "fee.updated"
	AuditMarketResolved  = "market.resolved"
	AuditMarketCancelled = "market.cancelled"
	AuditLedgerArchived  = "archive.ledger"
)

// AuditEntry is one row of the governance audit trail.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit query. An empty EventPrefix matches every
// event; "market." matches both market events.
type AuditFilter struct {
	EventPrefix string
	ListOpts
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns matching entries newest first.
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
