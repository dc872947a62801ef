package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// AuditLog is the read side of the audit trail.
type AuditLog interface {
	List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error)
}

// AuditHandler serves /api/audit.
type AuditHandler struct {
	audit  AuditLog
	logger *slog.Logger
}

func NewAuditHandler(audit AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// List returns audit entries newest first, optionally narrowed to events
// starting with ?event= (e.g. "market." or "fee.updated").
// GET /api/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptsOrError(w, r)
	if !ok {
		return
	}
	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		EventPrefix: r.URL.Query().Get("event"),
		ListOpts:    opts,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, newList(entries, opts))
}
