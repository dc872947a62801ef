package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenarena/internal/domain"
	"github.com/alanyoungcy/tokenarena/internal/service"
)

// AuctionService is what the auction endpoints need from the service layer.
type AuctionService interface {
	StartAuction(ctx context.Context, req service.StartAuctionRequest) (domain.Auction, error)
	PlaceBid(ctx context.Context, req service.PlaceBidRequest) (service.BidResult, error)
	ResolveAuctions(ctx context.Context) (service.SweepResult, error)
	GetActiveAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
	GetAuctionBids(ctx context.Context, auctionID string) ([]domain.Bid, error)
	GetAssetOwner(ctx context.Context, assetRef string) (domain.AssetOwnership, error)
}

// AuctionHandler serves /api/auctions and /api/assets.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logger}
}

// ListAuctions returns auctions still accepting bids.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptsOrError(w, r)
	if !ok {
		return
	}
	auctions, err := h.auctions.GetActiveAuctions(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list auctions", err)
		return
	}
	writeJSON(w, http.StatusOK, newList(auctions, opts))
}

// StartAuction puts an asset up for auction.
// POST /api/auctions
func (h *AuctionHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	var req service.StartAuctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.auctions.StartAuction(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "start auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ListBids returns the accepted bids of an auction, oldest first.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.auctions.GetAuctionBids(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list bids", err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

type placeBidBody struct {
	BidderID        string            `json:"bidder_id"`
	BidderType      domain.BettorType `json:"bidder_type"`
	BidderFactionID *int64            `json:"bidder_faction_id,omitempty"`
	Amount          int64             `json:"amount"`
}

// PlaceBid bids on an auction.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var body placeBidBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.auctions.PlaceBid(r.Context(), service.PlaceBidRequest{
		AuctionID:       pathParam(r, "id"),
		BidderID:        body.BidderID,
		BidderType:      body.BidderType,
		BidderFactionID: body.BidderFactionID,
		Amount:          body.Amount,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Sweep runs one auction resolution pass on demand.
// POST /api/auctions/sweep
func (h *AuctionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.auctions.ResolveAuctions(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "sweep auctions", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetOwner returns the current owner of an asset.
// GET /api/assets/{ref}/owner
func (h *AuctionHandler) GetOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.auctions.GetAssetOwner(r.Context(), pathParam(r, "ref"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get asset owner", err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}
