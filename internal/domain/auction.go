package domain

import "time"

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusLoyaltyWindow AuctionStatus = "loyalty_window"
	AuctionStatusOpen          AuctionStatus = "open"
	AuctionStatusSold          AuctionStatus = "sold"
	AuctionStatusExpired       AuctionStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusSold || s == AuctionStatusExpired
}

// Auction is a single-asset, time-windowed ascending auction.
type Auction struct {
	ID                string        `json:"id"`
	AssetRef          string        `json:"asset_ref"`
	OwnerFactionID    *int64        `json:"owner_faction_id,omitempty"`
	ReputationScore   float64       `json:"reputation_score"`
	StartingPrice     int64         `json:"starting_price"`
	CurrentBid        int64         `json:"current_bid"`
	CurrentBidderID   *string       `json:"current_bidder_id,omitempty"`
	CurrentBidderType *BettorType   `json:"current_bidder_type,omitempty"`
	LoyaltyWindowEnds *time.Time    `json:"loyalty_window_ends,omitempty"`
	AuctionEnds       time.Time     `json:"auction_ends"`
	Status            AuctionStatus `json:"status"`
	TotalBids         int           `json:"total_bids"`
	CreatedAt         time.Time     `json:"created_at"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
}

// Bid is an accepted offer on an auction.
type Bid struct {
	ID           string     `json:"id"`
	AuctionID    string     `json:"auction_id"`
	BidderID     string     `json:"bidder_id"`
	BidderType   BettorType `json:"bidder_type"`
	Amount       int64      `json:"amount"`
	IsLoyaltyBid bool       `json:"is_loyalty_bid"`
	CreatedAt    time.Time  `json:"created_at"`
}

// BidAcceptance is a compare-and-set request: the store applies it only if
// the auction still carries ExpectedBid and ExpectedStatus and has not passed
// its deadline at Bid.CreatedAt.
type BidAcceptance struct {
	Bid            Bid
	ExpectedBid    int64
	ExpectedStatus AuctionStatus
	NewStatus      AuctionStatus
}

// AssetOwnership records who holds an auctioned asset.
type AssetOwnership struct {
	AssetRef    string     `json:"asset_ref"`
	OwnerID     string     `json:"owner_id"`
	OwnerType   BettorType `json:"owner_type"`
	AcquiredVia string     `json:"acquired_via"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuctionClosure is the terminal write for an open auction past its deadline.
// Transfer and Ledger are written in the same transaction as the status flip,
// and only if the flip happens.
type AuctionClosure struct {
	Status   AuctionStatus
	Transfer *AssetOwnership
	Ledger   []LedgerEntry
}

// CloseFunc computes the closure from the auction row as locked by the store.
// It must not have side effects: the store may call it more than once.
type CloseFunc func(a Auction) (AuctionClosure, error)
