package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// LedgerService records token flows and answers fee questions. Entries are
// append-only and the balance is always derived from them.
type LedgerService struct {
	ledger domain.LedgerStore
	fees   domain.FeeConfigStore
	audit  domain.AuditStore
	events publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerService creates a LedgerService. bus may be nil.
func NewLedgerService(
	ledger domain.LedgerStore,
	fees domain.FeeConfigStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *LedgerService {
	logger = logger.With(slog.String("component", "ledger_service"))
	return &LedgerService{
		ledger: ledger,
		fees:   fees,
		events: publisher{bus: bus, logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// WithAuditLog records governance fee changes in the audit trail.
func (s *LedgerService) WithAuditLog(audit domain.AuditStore) *LedgerService {
	s.audit = audit
	return s
}

// NewLedgerEntry builds a validated entry without persisting it, for callers
// that write entries inside their own store transaction.
func NewLedgerEntry(txType string, amount int64, dir domain.Direction, refs map[string]string, at time.Time) (domain.LedgerEntry, error) {
	if txType == "" {
		return domain.LedgerEntry{}, domain.Validationf("tx_type is required")
	}
	if amount < 0 {
		return domain.LedgerEntry{}, domain.Validationf("amount must not be negative")
	}
	if !dir.Valid() {
		return domain.LedgerEntry{}, domain.Validationf("unknown direction %q", dir)
	}
	return domain.LedgerEntry{
		ID:          uuid.NewString(),
		TxType:      txType,
		Amount:      amount,
		Direction:   dir,
		RelatedRefs: refs,
		CreatedAt:   at,
	}, nil
}

// RecordEntry appends a ledger entry.
func (s *LedgerService) RecordEntry(ctx context.Context, txType string, amount int64, dir domain.Direction, refs map[string]string) (domain.LedgerEntry, error) {
	e, err := NewLedgerEntry(txType, amount, dir, refs, s.now())
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := s.ledger.Append(ctx, e); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger_service: append %s: %w", txType, err)
	}

	s.logger.InfoContext(ctx, "ledger_service: entry recorded",
		slog.String("tx_type", txType),
		slog.Int64("amount", amount),
		slog.String("direction", string(dir)),
	)
	s.events.publish(ctx, domain.ChannelLedger, EventLedgerEntry, e, e.CreatedAt)
	return e, nil
}

// Balance returns total inflow minus total outflow.
func (s *LedgerService) Balance(ctx context.Context) (domain.LedgerTotals, error) {
	t, err := s.ledger.Totals(ctx)
	if err != nil {
		return domain.LedgerTotals{}, fmt.Errorf("ledger_service: totals: %w", err)
	}
	return t, nil
}

// ListEntries returns ledger entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	entries, err := s.ledger.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list: %w", err)
	}
	return entries, nil
}

// FeeConfig returns the rule for feeType, or ErrUnknownFeeType.
func (s *LedgerService) FeeConfig(ctx context.Context, feeType string) (domain.FeeConfig, error) {
	cfg, err := s.fees.Get(ctx, feeType)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.FeeConfig{}, fmt.Errorf("%w: %s", domain.ErrUnknownFeeType, feeType)
	}
	if err != nil {
		return domain.FeeConfig{}, fmt.Errorf("ledger_service: get fee %s: %w", feeType, err)
	}
	return cfg, nil
}

// CalculateFee returns ceil(flatAmount + baseAmount * rate) for feeType.
func (s *LedgerService) CalculateFee(ctx context.Context, feeType string, baseAmount int64) (int64, error) {
	cfg, err := s.FeeConfig(ctx, feeType)
	if err != nil {
		return 0, err
	}
	return cfg.Fee(baseAmount), nil
}

// SetFeeConfig stores or replaces a fee rule.
func (s *LedgerService) SetFeeConfig(ctx context.Context, cfg domain.FeeConfig) (domain.FeeConfig, error) {
	if err := validateFeeConfig(cfg); err != nil {
		return domain.FeeConfig{}, err
	}
	cfg.UpdatedAt = s.now()
	if err := s.fees.Upsert(ctx, cfg); err != nil {
		return domain.FeeConfig{}, fmt.Errorf("ledger_service: upsert fee %s: %w", cfg.FeeType, err)
	}
	s.logger.InfoContext(ctx, "ledger_service: fee config set",
		slog.String("fee_type", cfg.FeeType),
		slog.Float64("rate", cfg.Rate),
		slog.Int64("flat_amount", cfg.FlatAmount),
	)
	if s.audit != nil {
		err := s.audit.Log(ctx, domain.AuditFeeUpdated, map[string]any{
			"fee_type":    cfg.FeeType,
			"rate":        cfg.Rate,
			"flat_amount": cfg.FlatAmount,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "ledger_service: audit log failed",
				slog.String("fee_type", cfg.FeeType),
				slog.String("error", err.Error()),
			)
		}
	}
	return cfg, nil
}

// ListFeeConfigs returns every configured fee rule.
func (s *LedgerService) ListFeeConfigs(ctx context.Context) ([]domain.FeeConfig, error) {
	cfgs, err := s.fees.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list fees: %w", err)
	}
	return cfgs, nil
}

// SeedFeeConfigs inserts boot-time fee rules without overwriting rules that
// governance has already set. It returns how many were inserted.
func (s *LedgerService) SeedFeeConfigs(ctx context.Context, cfgs []domain.FeeConfig) (int, error) {
	inserted := 0
	for _, cfg := range cfgs {
		if err := validateFeeConfig(cfg); err != nil {
			return inserted, err
		}
		cfg.UpdatedAt = s.now()
		ok, err := s.fees.InsertIfAbsent(ctx, cfg)
		if err != nil {
			return inserted, fmt.Errorf("ledger_service: seed fee %s: %w", cfg.FeeType, err)
		}
		if ok {
			inserted++
		}
	}
	if inserted > 0 {
		s.logger.InfoContext(ctx, "ledger_service: fee configs seeded", slog.Int("count", inserted))
	}
	return inserted, nil
}

func validateFeeConfig(cfg domain.FeeConfig) error {
	if cfg.FeeType == "" {
		return domain.Validationf("fee_type is required")
	}
	if cfg.Rate < 0 || cfg.Rate >= 1 {
		return domain.Validationf("fee %s: rate must be in [0, 1)", cfg.FeeType)
	}
	if cfg.FlatAmount < 0 {
		return domain.Validationf("fee %s: flat_amount must not be negative", cfg.FeeType)
	}
	return nil
}
