package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// LedgerService is what the ledger and fee endpoints need.
type LedgerService interface {
	ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	Balance(ctx context.Context) (domain.LedgerTotals, error)
	ListFeeConfigs(ctx context.Context) ([]domain.FeeConfig, error)
	SetFeeConfig(ctx context.Context, cfg domain.FeeConfig) (domain.FeeConfig, error)
}

// LedgerHandler serves /api/ledger, /api/fees and /api/settlements. archiver
// may be nil when object storage is not configured.
type LedgerHandler struct {
	ledger   LedgerService
	archiver domain.Archiver
	logger   *slog.Logger
}

func NewLedgerHandler(ledger LedgerService, archiver domain.Archiver, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, archiver: archiver, logger: logger}
}

// ListEntries returns ledger entries, newest first.
// GET /api/ledger?since=...&until=...
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptsOrError(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.ListEntries(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, newList(entries, opts))
}

// Balance returns the treasury totals derived from the entries.
// GET /api/ledger/balance
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.Balance(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "ledger balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"inflow":  totals.Inflow,
		"outflow": totals.Outflow,
		"balance": totals.Balance(),
	})
}

// ListFees returns every fee rule.
// GET /api/fees
func (h *LedgerHandler) ListFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.ledger.ListFeeConfigs(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list fees", err)
		return
	}
	if fees == nil {
		fees = []domain.FeeConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": fees})
}

type feeBody struct {
	Rate       float64 `json:"rate"`
	FlatAmount int64   `json:"flat_amount"`
}

// SetFee creates or replaces a fee rule.
// PUT /api/fees/{type}
func (h *LedgerHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	var body feeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.ledger.SetFeeConfig(r.Context(), domain.FeeConfig{
		FeeType:    pathParam(r, "type"),
		Rate:       body.Rate,
		FlatAmount: body.FlatAmount,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "set fee", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type archiveBody struct {
	Before *time.Time `json:"before,omitempty"`
}

// ArchiveLedger exports entries older than before (default now) to object
// storage.
// POST /api/ledger/archive
func (h *LedgerHandler) ArchiveLedger(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is not configured")
		return
	}
	var body archiveBody
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	before := time.Now().UTC()
	if body.Before != nil {
		before = body.Before.UTC()
	}

	path, count, err := h.archiver.ArchiveLedger(r.Context(), before)
	if err != nil {
		writeServiceError(w, r, h.logger, "archive ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "count": count})
}

// GetSettlement returns the archived settlement receipt of a market.
// GET /api/settlements/{id}
func (h *LedgerHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is not configured")
		return
	}
	receipt, err := h.archiver.GetSettlement(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
