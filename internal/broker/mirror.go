package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// EventPublisher is the outbound side of a broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// Mirror is a domain.SignalBus that forwards every Publish to a broker as
// well as to the primary bus. Subscriptions and streams stay on the
// primary. A broker failure is logged and does not fail the publish.
type Mirror struct {
	primary domain.SignalBus
	broker  EventPublisher
	logger  *slog.Logger
}

// NewMirror wraps primary, which may be nil when only the broker is used.
func NewMirror(primary domain.SignalBus, broker EventPublisher, logger *slog.Logger) *Mirror {
	return &Mirror{
		primary: primary,
		broker:  broker,
		logger:  logger.With(slog.String("component", "amqp_mirror")),
	}
}

// RoutingKey maps a bus channel to its routing key ("bids" -> "engine.bids").
func RoutingKey(channel string) string {
	return "engine." + channel
}

func (m *Mirror) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := m.broker.Publish(ctx, RoutingKey(channel), payload); err != nil {
		m.logger.WarnContext(ctx, "amqp: mirror publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if m.primary == nil {
		return nil
	}
	return m.primary.Publish(ctx, channel, payload)
}

func (m *Mirror) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if m.primary == nil {
		return nil, fmt.Errorf("%w: subscribe needs the redis signal bus", domain.ErrConfiguration)
	}
	return m.primary.Subscribe(ctx, channel)
}

func (m *Mirror) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	if m.primary == nil {
		return nil
	}
	return m.primary.StreamAppend(ctx, stream, payload)
}

func (m *Mirror) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	if m.primary == nil {
		return nil, fmt.Errorf("%w: stream read needs the redis signal bus", domain.ErrConfiguration)
	}
	return m.primary.StreamRead(ctx, stream, lastID, count)
}

var _ domain.SignalBus = (*Mirror)(nil)
