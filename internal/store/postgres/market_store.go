package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator_id, match_id, market_type, title, options,
	status, total_pool, fee_collected, winning_option_id,
	governance_cooldown_seconds, created_at, lock_time, resolved_at`

const betCols = `id, market_id, bettor_type, bettor_id, option_id, amount,
	potential_payout, status, paid_out, created_at, settled_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var marketType, status string
	var options []byte
	err := row.Scan(
		&m.ID, &m.CreatorID, &m.MatchID, &marketType, &m.Title, &options,
		&status, &m.TotalPool, &m.FeeCollected, &m.WinningOptionID,
		&m.GovernanceCooldownSeconds, &m.CreatedAt, &m.LockTime, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(options, &m.Options); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal options: %w", err)
	}
	m.Type = domain.MarketType(marketType)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var bettorType, status string
	err := row.Scan(
		&b.ID, &b.MarketID, &bettorType, &b.BettorID, &b.OptionID, &b.Amount,
		&b.PotentialPayout, &status, &b.PaidOut, &b.CreatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.BettorType = domain.BettorType(bettorType)
	b.Status = domain.BetStatus(status)
	return b, nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	options, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("postgres: marshal options for market %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (` + marketCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.CreatorID, m.MatchID, string(m.Type), m.Title, options,
		string(m.Status), m.TotalPool, m.FeeCollected, m.WinningOptionID,
		m.GovernanceCooldownSeconds, m.CreatedAt, m.LockTime, m.ResolvedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.Validationf("duplicate market id"))
	}
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, notFound(err))
	}
	return m, nil
}

// ListOpen returns open markets, newest first.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query, args := listClause(
		`SELECT `+marketCols+` FROM markets WHERE status = 'open'`, nil,
		"created_at", "created_at DESC, id", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open markets rows: %w", err)
	}
	return markets, nil
}

// LatestOpen returns the most recently created open market.
func (s *MarketStore) LatestOpen(ctx context.Context) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT 1`)
	m, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: latest open market: %w", notFound(err))
	}
	return m, nil
}

// ListBets returns every bet on a market in placement order.
func (s *MarketStore) ListBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, marketID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: check market %s: %w", marketID, err)
	}
	if !exists {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", marketID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY seq`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", marketID, err)
	}
	bets, err := collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", marketID, err)
	}
	return bets, nil
}

// PlaceBet grows the pool and inserts the bet in one transaction. The
// conditional UPDATE re-checks status, lock time and option under the row
// lock, so a bet can never land on a market that closed concurrently.
func (s *MarketStore) PlaceBet(ctx context.Context, bet domain.Bet) (domain.Market, error) {
	var updated domain.Market
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE markets SET total_pool = total_pool + $2
			WHERE id = $1
			  AND status = 'open'
			  AND (lock_time IS NULL OR $3 < lock_time)
			  AND options @> jsonb_build_array(jsonb_build_object('id', $4::int))
			RETURNING `+marketCols,
			bet.MarketID, bet.Amount, bet.CreatedAt, bet.OptionID,
		)
		m, err := scanMarket(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.betRejection(ctx, tx, bet)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bets (`+betCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			bet.ID, bet.MarketID, string(bet.BettorType), bet.BettorID, bet.OptionID, bet.Amount,
			bet.PotentialPayout, string(bet.Status), bet.PaidOut, bet.CreatedAt, bet.SettledAt,
		)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		updated = m
		return nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: place bet on %s: %w", bet.MarketID, err)
	}
	return updated, nil
}

// betRejection explains why the conditional pool update matched no row.
func (s *MarketStore) betRejection(ctx context.Context, tx pgx.Tx, bet domain.Bet) error {
	m, err := scanMarket(tx.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, bet.MarketID))
	if err != nil {
		return notFound(err)
	}
	if !m.AcceptsBets(bet.CreatedAt) {
		return domain.ErrMarketClosed
	}
	if _, ok := m.Option(bet.OptionID); !ok {
		return fmt.Errorf("option %d: %w", bet.OptionID, domain.ErrNotFound)
	}
	return domain.ErrConcurrencyConflict
}

// Lock moves an open market to locked.
func (s *MarketStore) Lock(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE markets SET status = 'locked'
		WHERE id = $1 AND status = 'open'
		RETURNING `+marketCols, id)
	m, err := scanMarket(row)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	if current.Status.Terminal() {
		return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, domain.ErrAlreadyResolved)
	}
	return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, domain.ErrMarketClosed)
}

// Settle locks the market row, computes the settlement over its active bets
// and commits bet outcomes, ledger entries and the market's terminal status
// together.
func (s *MarketStore) Settle(ctx context.Context, id string, fn domain.SettleFunc) (domain.Market, error) {
	var settled domain.Market
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := scanMarket(tx.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		if m.Status.Terminal() {
			return domain.ErrAlreadyResolved
		}

		rows, err := tx.Query(ctx, `
			SELECT `+betCols+` FROM bets
			WHERE market_id = $1 AND status = 'active'
			ORDER BY seq
			FOR UPDATE`, id)
		if err != nil {
			return fmt.Errorf("select active bets: %w", err)
		}
		active, err := collectBets(rows)
		if err != nil {
			return fmt.Errorf("select active bets: %w", err)
		}

		st, err := fn(m, active)
		if err != nil {
			return err
		}
		if !st.Status.Terminal() {
			return fmt.Errorf("non-terminal settlement status %q", st.Status)
		}

		if len(st.Outcomes) > 0 {
			batch := &pgx.Batch{}
			for _, o := range st.Outcomes {
				batch.Queue(`
					UPDATE bets SET status = $2, paid_out = $3, settled_at = $4
					WHERE id = $1 AND market_id = $5 AND status = 'active'`,
					o.BetID, string(o.Status), o.PaidOut, st.SettledAt, id,
				)
			}
			br := tx.SendBatch(ctx, batch)
			for _, o := range st.Outcomes {
				tag, err := br.Exec()
				if err != nil {
					_ = br.Close()
					return fmt.Errorf("settle bet %s: %w", o.BetID, err)
				}
				if tag.RowsAffected() != 1 {
					_ = br.Close()
					return fmt.Errorf("bet %s is not active: %w", o.BetID, domain.ErrConcurrencyConflict)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("settle bets: %w", err)
			}
		}

		if err := insertLedgerEntries(ctx, tx, st.LedgerEntries); err != nil {
			return err
		}

		settled, err = scanMarket(tx.QueryRow(ctx, `
			UPDATE markets
			SET status = $2, winning_option_id = $3, fee_collected = $4, resolved_at = $5
			WHERE id = $1
			RETURNING `+marketCols,
			id, string(st.Status), st.WinningOptionID, st.FeeCollected, st.SettledAt,
		))
		if err != nil {
			return fmt.Errorf("update market status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: settle market %s: %w", id, err)
	}
	return settled, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
