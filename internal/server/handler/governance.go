package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/service"
)

// Governor is the cooldown guard consulted before governance actions.
type Governor interface {
	IsCooldownActive(ctx context.Context) (service.CooldownStatus, error)
	Guard(ctx context.Context, actorID string) (service.CooldownStatus, error)
}

// GovernanceHandler serves /api/governance.
type GovernanceHandler struct {
	governor Governor
	logger   *slog.Logger
}

func NewGovernanceHandler(g Governor, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{governor: g, logger: logger}
}

// Cooldown reports the current cooldown state.
// GET /api/governance/cooldown
func (h *GovernanceHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	st, err := h.governor.IsCooldownActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "cooldown status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type checkBody struct {
	ActorID string `json:"actor_id"`
}

// Check answers whether a governance action may proceed now: 200 when it
// may, 409 with the cooldown status when it may not.
// POST /api/governance/check
func (h *GovernanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	var body checkBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.governor.Guard(r.Context(), body.ActorID)
	if errors.Is(err, domain.ErrCooldownActive) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    err.Error(),
			"cooldown": st,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "governance check", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "cooldown": st})
}
