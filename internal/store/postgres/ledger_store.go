package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Rows are
// protected against UPDATE and DELETE by a trigger.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerCols = `id, tx_type, amount, direction, related_refs, created_at`

// batchSender is satisfied by both *pgxpool.Pool and pgx.Tx.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// insertLedgerEntries appends entries through q, which may be a transaction.
func insertLedgerEntries(ctx context.Context, q batchSender, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		refs, err := json.Marshal(e.RelatedRefs)
		if err != nil {
			return fmt.Errorf("marshal refs for entry %s: %w", e.ID, err)
		}
		if e.RelatedRefs == nil {
			refs = []byte("{}")
		}
		batch.Queue(`INSERT INTO ledger_entries (`+ledgerCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.TxType, e.Amount, string(e.Direction), refs, e.CreatedAt,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var direction string
	var refs []byte
	if err := row.Scan(&e.ID, &e.TxType, &e.Amount, &direction, &refs, &e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Direction = domain.Direction(direction)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.RelatedRefs); err != nil {
			return domain.LedgerEntry{}, fmt.Errorf("unmarshal refs: %w", err)
		}
		if len(e.RelatedRefs) == 0 {
			e.RelatedRefs = nil
		}
	}
	return e, nil
}

func (s *LedgerStore) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append adds an entry to the ledger.
func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	if err := insertLedgerEntries(ctx, s.pool, []domain.LedgerEntry{e}); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *LedgerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := listClause(`SELECT `+ledgerCols+` FROM ledger_entries WHERE 1=1`, nil,
		"created_at", "seq DESC", opts)
	entries, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	return entries, nil
}

// ListRange returns entries with from <= created_at < before, oldest first.
func (s *LedgerStore) ListRange(ctx context.Context, from, before time.Time) ([]domain.LedgerEntry, error) {
	entries, err := s.queryEntries(ctx, `
		SELECT `+ledgerCols+` FROM ledger_entries
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, seq`, from, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries [%s, %s): %w",
			from.Format(time.RFC3339), before.Format(time.RFC3339), err)
	}
	return entries, nil
}

// Totals sums every entry by direction.
func (s *LedgerStore) Totals(ctx context.Context) (domain.LedgerTotals, error) {
	var t domain.LedgerTotals
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'inflow'), 0)::BIGINT,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'outflow'), 0)::BIGINT
		FROM ledger_entries`,
	).Scan(&t.Inflow, &t.Outflow)
	if err != nil {
		return domain.LedgerTotals{}, fmt.Errorf("postgres: ledger totals: %w", err)
	}
	return t, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
