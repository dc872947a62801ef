package domain

import (
	"context"
	"time"
)

// MarketCache holds market snapshots for detail reads. Entries are
// invalidated after a market settles; a miss returns ErrNotFound.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter admits at most limit calls per key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive leases. Acquire returns ErrLockHeld when
// another holder owns key; the returned unlock is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries engine events: fire-and-forget channels (see Channel*)
// and the capped EventStream for consumers that need replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
