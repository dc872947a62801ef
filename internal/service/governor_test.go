package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

func TestGovernorCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	st, err := h.governor.IsCooldownActive(ctx)
	if err != nil {
		t.Fatalf("IsCooldownActive: %v", err)
	}
	if st.Active {
		t.Error("cooldown active with no markets")
	}

	m := createMarket(t, h, nil)
	h.clock.Advance(time.Minute)
	st, err = h.governor.IsCooldownActive(ctx)
	if err != nil {
		t.Fatalf("IsCooldownActive: %v", err)
	}
	if !st.Active || st.MarketID != m.ID || st.CreatorID != "creator-1" {
		t.Errorf("status: got %+v, want active for %s", st, m.ID)
	}
	if want := m.CreatedAt.Add(5 * time.Minute); !st.CooldownEnds.Equal(want) {
		t.Errorf("cooldown ends: got %v, want %v", st.CooldownEnds, want)
	}
	if _, err := h.governor.Guard(ctx, "dao-member"); !errors.Is(err, domain.ErrCooldownActive) {
		t.Errorf("Guard: got %v, want ErrCooldownActive", err)
	}

	h.clock.Advance(4 * time.Minute)
	st, _ = h.governor.IsCooldownActive(ctx)
	if st.Active {
		t.Error("cooldown still active at its deadline")
	}
	if _, err := h.governor.Guard(ctx, "dao-member"); err != nil {
		t.Errorf("Guard after cooldown: %v", err)
	}
}

func TestGovernorIgnoresClosedMarkets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := createMarket(t, h, nil)
	if _, err := h.markets.CancelMarket(ctx, m.ID); err != nil {
		t.Fatalf("CancelMarket: %v", err)
	}
	st, err := h.governor.IsCooldownActive(ctx)
	if err != nil {
		t.Fatalf("IsCooldownActive: %v", err)
	}
	if st.Active {
		t.Error("cooldown active for a cancelled market")
	}
}
