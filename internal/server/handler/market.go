package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/service"
)

// MarketService is what the market endpoints need from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (service.CreateMarketResult, error)
	PlaceBet(ctx context.Context, req service.PlaceBetRequest) (domain.Bet, error)
	ResolveMarket(ctx context.Context, marketID string, winningOptionID int) (service.MarketResolution, error)
	CancelMarket(ctx context.Context, marketID string) (domain.Market, error)
	LockMarket(ctx context.Context, marketID string) (domain.Market, error)
	GetOpenMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	GetMarketDetail(ctx context.Context, marketID string) (service.MarketDetail, error)
}

// MarketHandler serves /api/markets.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns open markets, newest first.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptsOrError(w, r)
	if !ok {
		return
	}
	markets, err := h.markets.GetOpenMarkets(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, newList(markets, opts))
}

// CreateMarket opens a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.markets.CreateMarket(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetMarket returns a market with its bets.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	detail, err := h.markets.GetMarketDetail(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type placeBetBody struct {
	BettorType domain.BettorType `json:"bettor_type"`
	BettorID   string            `json:"bettor_id"`
	OptionID   int               `json:"option_id"`
	Amount     int64             `json:"amount"`
}

// PlaceBet stakes on one option.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var body placeBetBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bet, err := h.markets.PlaceBet(r.Context(), service.PlaceBetRequest{
		MarketID:   pathParam(r, "id"),
		BettorType: body.BettorType,
		BettorID:   body.BettorID,
		OptionID:   body.OptionID,
		Amount:     body.Amount,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

type resolveBody struct {
	WinningOptionID *int `json:"winning_option_id"`
}

// ResolveMarket settles the market on the winning option.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.WinningOptionID == nil {
		writeError(w, http.StatusBadRequest, "winning_option_id is required")
		return
	}
	res, err := h.markets.ResolveMarket(r.Context(), pathParam(r, "id"), *body.WinningOptionID)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LockMarket stops betting.
// POST /api/markets/{id}/lock
func (h *MarketHandler) LockMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.LockMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "lock market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CancelMarket refunds every active bet.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.CancelMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
