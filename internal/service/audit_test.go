package service

import (
	"context"
	"testing"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

func TestSettlementsAndFeeChangesAreAudited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	resolved := createMarket(t, h, nil)
	placeBet(t, h, resolved.ID, 1, 10)
	if _, err := h.markets.ResolveMarket(ctx, resolved.ID, 1); err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	cancelled := createMarket(t, h, nil)
	if _, err := h.markets.CancelMarket(ctx, cancelled.ID); err != nil {
		t.Fatalf("CancelMarket: %v", err)
	}
	if _, err := h.ledger.SetFeeConfig(ctx, domain.FeeConfig{FeeType: "market_house_fee", Rate: 0.02}); err != nil {
		t.Fatalf("SetFeeConfig: %v", err)
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{domain.AuditFeeUpdated, domain.AuditMarketCancelled, domain.AuditMarketResolved}},
		{"market.", []string{domain.AuditMarketCancelled, domain.AuditMarketResolved}},
		{"fee.", []string{domain.AuditFeeUpdated}},
		{"archive.", nil},
	}
	for _, tt := range tests {
		t.Run("prefix "+tt.prefix, func(t *testing.T) {
			entries, err := h.store.Audit().List(ctx, domain.AuditFilter{EventPrefix: tt.prefix})
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e.Event != tt.want[i] {
					t.Errorf("entry %d: got %s, want %s", i, e.Event, tt.want[i])
				}
			}
		})
	}

	entries, err := h.store.Audit().List(ctx, domain.AuditFilter{EventPrefix: domain.AuditMarketResolved})
	if err != nil {
		t.Fatal(err)
	}
	d := entries[0].Detail
	if d["market_id"] != resolved.ID || d["winning_option_id"] != 1 {
		t.Errorf("resolved detail = %v", d)
	}
}
