package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/tokenarena/internal/config"
)

func TestWireMemoryDefaults(t *testing.T) {
	cfg := config.Defaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.SignalBus != nil || deps.EventSource != nil {
		t.Error("bus should be nil without redis or amqp")
	}
	if deps.Archiver != nil {
		t.Error("archiver should be nil without s3")
	}
	if len(deps.Pingers) != 0 {
		t.Errorf("pingers = %d, want 0", len(deps.Pingers))
	}

	fees, err := deps.LedgerSvc.ListFeeConfigs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fees) != len(cfg.Fees) {
		t.Errorf("seeded fees = %d, want %d", len(fees), len(cfg.Fees))
	}
}

func TestWireKeepsGovernanceFees(t *testing.T) {
	cfg := config.Defaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, &cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	// A second seed over the same store must not overwrite existing rules.
	n, err := deps.LedgerSvc.SeedFeeConfigs(ctx, nil)
	if err != nil || n != 0 {
		t.Errorf("reseed = %d, %v", n, err)
	}
	fee, err := deps.LedgerSvc.FeeConfig(ctx, "market_house_fee")
	if err != nil {
		t.Fatal(err)
	}
	if fee.Rate != 0.05 {
		t.Errorf("rate = %g, want 0.05", fee.Rate)
	}
}

func TestIgnoreCanceled(t *testing.T) {
	if err := ignoreCanceled(context.Canceled); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if err := ignoreCanceled(io.EOF); err != io.EOF {
		t.Errorf("got %v, want EOF", err)
	}
}
