package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

type fakeBroker struct {
	keys []string
	err  error
}

func (f *fakeBroker) Publish(_ context.Context, key string, _ []byte) error {
	f.keys = append(f.keys, key)
	return f.err
}

type fakeBus struct {
	published []string
	streamed  []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.streamed = append(f.streamed, stream)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func logger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMirrorForwardsPublishes(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker down")}
	bus := &fakeBus{}
	m := NewMirror(bus, broker, logger())
	ctx := context.Background()

	if err := m.Publish(ctx, domain.ChannelBids, []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := m.StreamAppend(ctx, domain.EventStream, []byte(`{}`)); err != nil {
		t.Fatalf("StreamAppend: %v", err)
	}

	if len(broker.keys) != 1 || broker.keys[0] != "engine.bids" {
		t.Errorf("broker keys = %v, want [engine.bids]", broker.keys)
	}
	if len(bus.published) != 1 || len(bus.streamed) != 1 {
		t.Errorf("primary got %v / %v", bus.published, bus.streamed)
	}
}

func TestMirrorWithoutPrimary(t *testing.T) {
	m := NewMirror(nil, &fakeBroker{}, logger())
	ctx := context.Background()

	if err := m.Publish(ctx, domain.ChannelMarkets, []byte(`{}`)); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if _, err := m.Subscribe(ctx, domain.ChannelMarkets); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Subscribe: got %v, want ErrConfiguration", err)
	}
}
