package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// CooldownStatus reports whether governance actions are currently frozen.
type CooldownStatus struct {
	Active       bool       `json:"active"`
	CooldownEnds *time.Time `json:"cooldown_ends,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	MarketID     string     `json:"market_id,omitempty"`
	CreatorID    string     `json:"creator_id,omitempty"`
}

// Governor freezes governance actions for a while after a market opens, so
// a creator cannot change the rules under freshly placed stakes. It only
// reads.
type Governor struct {
	markets domain.MarketStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewGovernor creates a Governor.
func NewGovernor(markets domain.MarketStore, logger *slog.Logger) *Governor {
	return &Governor{
		markets: markets,
		logger:  logger.With(slog.String("component", "governor")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// IsCooldownActive checks the most recently created open market.
func (g *Governor) IsCooldownActive(ctx context.Context) (CooldownStatus, error) {
	m, err := g.markets.LatestOpen(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return CooldownStatus{}, nil
	}
	if err != nil {
		return CooldownStatus{}, fmt.Errorf("governor: latest open market: %w", err)
	}

	now := g.now()
	ends := m.CooldownEnds()
	if !now.Before(ends) {
		return CooldownStatus{}, nil
	}
	return CooldownStatus{
		Active:       true,
		CooldownEnds: &ends,
		Reason: fmt.Sprintf("market %s opened %s ago; governance is frozen for another %s",
			m.ID, now.Sub(m.CreatedAt).Truncate(time.Second), ends.Sub(now).Truncate(time.Second)),
		MarketID:  m.ID,
		CreatorID: m.CreatorID,
	}, nil
}

// Guard returns ErrCooldownActive while the cooldown is running.
func (g *Governor) Guard(ctx context.Context, actorID string) (CooldownStatus, error) {
	st, err := g.IsCooldownActive(ctx)
	if err != nil {
		return CooldownStatus{}, err
	}
	if st.Active {
		g.logger.WarnContext(ctx, "governor: action blocked by cooldown",
			slog.String("actor_id", actorID),
			slog.String("market_id", st.MarketID),
			slog.Time("cooldown_ends", *st.CooldownEnds),
		)
		return st, fmt.Errorf("%w: %s", domain.ErrCooldownActive, st.Reason)
	}
	return st, nil
}
