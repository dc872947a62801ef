package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionCols = `id, asset_ref, owner_faction_id, reputation_score, starting_price,
	current_bid, current_bidder_id, current_bidder_type, loyalty_window_ends,
	auction_ends, status, total_bids, created_at, resolved_at`

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var a domain.Auction
	var status string
	var bidderType *string
	err := row.Scan(
		&a.ID, &a.AssetRef, &a.OwnerFactionID, &a.ReputationScore, &a.StartingPrice,
		&a.CurrentBid, &a.CurrentBidderID, &bidderType, &a.LoyaltyWindowEnds,
		&a.AuctionEnds, &status, &a.TotalBids, &a.CreatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}
	a.Status = domain.AuctionStatus(status)
	if bidderType != nil {
		t := domain.BettorType(*bidderType)
		a.CurrentBidderType = &t
	}
	return a, nil
}

func (s *AuctionStore) queryAuctions(ctx context.Context, query string, args ...any) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

func (s *AuctionStore) exists(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, id string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Create inserts a new auction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	var bidderType *string
	if a.CurrentBidderType != nil {
		t := string(*a.CurrentBidderType)
		bidderType = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (`+auctionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.AssetRef, a.OwnerFactionID, a.ReputationScore, a.StartingPrice,
		a.CurrentBid, a.CurrentBidderID, bidderType, a.LoyaltyWindowEnds,
		a.AuctionEnds, string(a.Status), a.TotalBids, a.CreatedAt, a.ResolvedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, domain.Validationf("duplicate auction id"))
	}
	if err != nil {
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an auction by its primary key.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id))
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, notFound(err))
	}
	return a, nil
}

// ListActive returns biddable auctions ordered by deadline, soonest first.
func (s *AuctionStore) ListActive(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Auction, error) {
	query, args := listClause(`
		SELECT `+auctionCols+` FROM auctions
		WHERE status IN ('loyalty_window', 'open') AND auction_ends >= $1`,
		[]any{now}, "created_at", "auction_ends, seq", opts,
	)
	auctions, err := s.queryAuctions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active auctions: %w", err)
	}
	return auctions, nil
}

// ListBids returns accepted bids in acceptance order.
func (s *AuctionStore) ListBids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	ok, err := s.exists(ctx, s.pool, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: check auction %s: %w", auctionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", auctionID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, bidder_type, amount, is_loyalty_bid, created_at
		FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var bidderType string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &bidderType, &b.Amount, &b.IsLoyaltyBid, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		b.BidderType = domain.BettorType(bidderType)
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return bids, nil
}

// AcceptBid applies the bid with a single conditional UPDATE on the expected
// current bid and status, then inserts the bid row in the same transaction.
func (s *AuctionStore) AcceptBid(ctx context.Context, acc domain.BidAcceptance) (domain.Auction, error) {
	b := acc.Bid
	var updated domain.Auction
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := scanAuction(tx.QueryRow(ctx, `
			UPDATE auctions
			SET current_bid = $2,
			    current_bidder_id = $3,
			    current_bidder_type = $4,
			    total_bids = total_bids + 1,
			    status = $5
			WHERE id = $1
			  AND status = $6
			  AND current_bid = $7
			  AND $8 <= auction_ends
			  AND $2 > current_bid
			RETURNING `+auctionCols,
			b.AuctionID, b.Amount, b.BidderID, string(b.BidderType), string(acc.NewStatus),
			string(acc.ExpectedStatus), acc.ExpectedBid, b.CreatedAt,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			ok, err := s.exists(ctx, tx, b.AuctionID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrNotFound
			}
			return domain.ErrConcurrencyConflict
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bids (id, auction_id, bidder_id, bidder_type, amount, is_loyalty_bid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, b.AuctionID, b.BidderID, string(b.BidderType), b.Amount, b.IsLoyaltyBid, b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: accept bid on %s: %w", b.AuctionID, err)
	}
	return updated, nil
}

// ListLoyaltyElapsed returns loyalty-window auctions whose window has ended.
func (s *AuctionStore) ListLoyaltyElapsed(ctx context.Context, now time.Time) ([]domain.Auction, error) {
	auctions, err := s.queryAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE status = 'loyalty_window' AND loyalty_window_ends <= $1
		ORDER BY auction_ends, seq`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loyalty elapsed: %w", err)
	}
	return auctions, nil
}

// ListDue returns open auctions at or past their deadline.
func (s *AuctionStore) ListDue(ctx context.Context, now time.Time) ([]domain.Auction, error) {
	auctions, err := s.queryAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE status = 'open' AND auction_ends <= $1
		ORDER BY auction_ends, seq`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due auctions: %w", err)
	}
	return auctions, nil
}

// OpenLoyalty transitions an elapsed loyalty window to open.
func (s *AuctionStore) OpenLoyalty(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auctions SET status = 'open'
		WHERE id = $1 AND status = 'loyalty_window' AND loyalty_window_ends <= $2`, id, now)
	if err != nil {
		return false, fmt.Errorf("postgres: open auction %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	ok, err := s.exists(ctx, s.pool, id)
	if err != nil {
		return false, fmt.Errorf("postgres: check auction %s: %w", id, err)
	}
	if !ok {
		return false, fmt.Errorf("postgres: open auction %s: %w", id, domain.ErrNotFound)
	}
	return false, nil
}

// Close locks the auction row, builds the closure from it and flips the
// auction to its terminal status, writing the ownership transfer and ledger
// entries in the same transaction. A bid racing the close either commits
// first and is seen by fn, or waits on the row lock and then fails its
// status check. Nothing is written when another sweep got there first.
func (s *AuctionStore) Close(ctx context.Context, id string, closedAt time.Time, fn domain.CloseFunc) (domain.Auction, bool, error) {
	var (
		out    domain.Auction
		closed bool
	)
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		closed = false
		a, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		out = a
		if a.Status != domain.AuctionStatusOpen || closedAt.Before(a.AuctionEnds) {
			return nil
		}

		c, err := fn(a)
		if err != nil {
			return err
		}
		if !c.Status.Terminal() {
			return fmt.Errorf("non-terminal status %q", c.Status)
		}
		out, err = scanAuction(tx.QueryRow(ctx, `
			UPDATE auctions SET status = $2, resolved_at = $3
			WHERE id = $1
			RETURNING `+auctionCols,
			id, string(c.Status), closedAt,
		))
		if err != nil {
			return err
		}

		if t := c.Transfer; t != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO asset_ownership (asset_ref, owner_id, owner_type, acquired_via, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (asset_ref) DO UPDATE SET
					owner_id     = EXCLUDED.owner_id,
					owner_type   = EXCLUDED.owner_type,
					acquired_via = EXCLUDED.acquired_via,
					updated_at   = EXCLUDED.updated_at`,
				t.AssetRef, t.OwnerID, string(t.OwnerType), t.AcquiredVia, t.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("transfer %s: %w", t.AssetRef, err)
			}
		}
		if err := insertLedgerEntries(ctx, tx, c.Ledger); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return domain.Auction{}, false, fmt.Errorf("postgres: close auction %s: %w", id, err)
	}
	return out, closed, nil
}

// GetOwner returns the current owner of an asset.
func (s *AuctionStore) GetOwner(ctx context.Context, assetRef string) (domain.AssetOwnership, error) {
	var o domain.AssetOwnership
	var ownerType string
	err := s.pool.QueryRow(ctx, `
		SELECT asset_ref, owner_id, owner_type, acquired_via, updated_at
		FROM asset_ownership WHERE asset_ref = $1`, assetRef,
	).Scan(&o.AssetRef, &o.OwnerID, &ownerType, &o.AcquiredVia, &o.UpdatedAt)
	if err != nil {
		return domain.AssetOwnership{}, fmt.Errorf("postgres: owner of %s: %w", assetRef, notFound(err))
	}
	o.OwnerType = domain.BettorType(ownerType)
	return o, nil
}

var _ domain.AuctionStore = (*AuctionStore)(nil)
