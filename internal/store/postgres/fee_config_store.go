package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// FeeConfigStore implements domain.FeeConfigStore using PostgreSQL.
type FeeConfigStore struct {
	pool *pgxpool.Pool
}

// NewFeeConfigStore creates a new FeeConfigStore backed by the given connection pool.
func NewFeeConfigStore(pool *pgxpool.Pool) *FeeConfigStore {
	return &FeeConfigStore{pool: pool}
}

// Get returns the fee rule for feeType.
func (s *FeeConfigStore) Get(ctx context.Context, feeType string) (domain.FeeConfig, error) {
	var c domain.FeeConfig
	err := s.pool.QueryRow(ctx,
		`SELECT fee_type, rate, flat_amount, updated_at FROM fee_configs WHERE fee_type = $1`, feeType,
	).Scan(&c.FeeType, &c.Rate, &c.FlatAmount, &c.UpdatedAt)
	if err != nil {
		return domain.FeeConfig{}, fmt.Errorf("postgres: get fee config %s: %w", feeType, notFound(err))
	}
	return c, nil
}

// Upsert stores or replaces a fee rule.
func (s *FeeConfigStore) Upsert(ctx context.Context, c domain.FeeConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fee_configs (fee_type, rate, flat_amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fee_type) DO UPDATE SET
			rate        = EXCLUDED.rate,
			flat_amount = EXCLUDED.flat_amount,
			updated_at  = EXCLUDED.updated_at`,
		c.FeeType, c.Rate, c.FlatAmount, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert fee config %s: %w", c.FeeType, err)
	}
	return nil
}

// InsertIfAbsent stores c only when no rule exists for its fee type.
func (s *FeeConfigStore) InsertIfAbsent(ctx context.Context, c domain.FeeConfig) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO fee_configs (fee_type, rate, flat_amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fee_type) DO NOTHING`,
		c.FeeType, c.Rate, c.FlatAmount, c.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert fee config %s: %w", c.FeeType, err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns every fee rule ordered by fee type.
func (s *FeeConfigStore) List(ctx context.Context) ([]domain.FeeConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT fee_type, rate, flat_amount, updated_at FROM fee_configs ORDER BY fee_type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee configs: %w", err)
	}
	defer rows.Close()

	var cfgs []domain.FeeConfig
	for rows.Next() {
		var c domain.FeeConfig
		if err := rows.Scan(&c.FeeType, &c.Rate, &c.FlatAmount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fee config: %w", err)
		}
		cfgs = append(cfgs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fee configs rows: %w", err)
	}
	return cfgs, nil
}

var _ domain.FeeConfigStore = (*FeeConfigStore)(nil)
