package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// Event types published on the signal bus.
const (
	EventMarketCreated   = "market_created"
	EventMarketLocked    = "market_locked"
	EventMarketResolved  = "market_resolved"
	EventMarketCancelled = "market_cancelled"
	EventBetPlaced       = "bet_placed"
	EventAuctionStarted  = "auction_started"
	EventAuctionOpened   = "auction_opened"
	EventAuctionSold     = "auction_sold"
	EventAuctionExpired  = "auction_expired"
	EventBidAccepted     = "bid_accepted"
	EventLedgerEntry     = "ledger_entry"
	EventSweepFailed     = "sweep_failed"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// publisher fans committed state changes out to the signal bus. Publishing
// happens after the store commit and never fails the operation.
type publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func (p publisher) publish(ctx context.Context, channel, eventType string, payload any, at time.Time) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(domain.Event{Type: eventType, Payload: payload, Timestamp: at})
	if err != nil {
		p.logger.WarnContext(ctx, "events: marshal failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, channel, data); err != nil {
		p.logger.WarnContext(ctx, "events: publish failed",
			slog.String("channel", channel),
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, domain.EventStream, data); err != nil {
		p.logger.WarnContext(ctx, "events: stream append failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func notify(ctx context.Context, n Notifier, logger *slog.Logger, event, title, message string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event, title, message); err != nil {
		logger.WarnContext(ctx, "notify: delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
