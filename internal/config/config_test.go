package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Storage = "sqlite"
	cfg.Engine.HouseFeeRate = 1.2
	cfg.Auction.LoyaltyDuration = Duration{time.Hour}
	cfg.Fees = append(cfg.Fees, FeeSeed{FeeType: "market_house_fee", Rate: 0.1})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "unknown storage", "house_fee_rate", "loyalty_duration", "duplicate fee_type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.toml")
	body := `
mode = "sweeper"
storage = "postgres"

[postgres]
dsn = "postgres://u:p@db:5432/arena"

[engine]
house_fee_rate = 0.02
governance_cooldown = "90s"

[[fees]]
fee_type = "auction_house_fee"
rate = 0.025
flat_amount = 1
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeSweeper || cfg.Storage != StoragePostgres {
		t.Errorf("mode/storage = %s/%s", cfg.Mode, cfg.Storage)
	}
	if cfg.Engine.GovernanceCooldown.Duration != 90*time.Second {
		t.Errorf("cooldown = %v, want 90s", cfg.Engine.GovernanceCooldown)
	}
	if len(cfg.Fees) != 1 || cfg.Fees[0].FlatAmount != 1 {
		t.Errorf("fees = %+v", cfg.Fees)
	}
	if cfg.Auction.BasePrice != 50 {
		t.Errorf("base_price = %d, want default 50", cfg.Auction.BasePrice)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	body := `
mode: server
auction:
  min_increment: 25
  loyalty_duration: 1m
server:
  port: 9090
  cors_origins: ["https://arena.example"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeServer || cfg.Server.Port != 9090 {
		t.Errorf("mode/port = %s/%d", cfg.Mode, cfg.Server.Port)
	}
	if cfg.Auction.MinIncrement != 25 || cfg.Auction.LoyaltyDuration.Duration != time.Minute {
		t.Errorf("auction = %+v", cfg.Auction)
	}
	if cfg.Auction.AuctionDuration.Duration != 10*time.Minute {
		t.Errorf("auction_duration = %v, want default 10m", cfg.Auction.AuctionDuration)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARENA_MODE", "server")
	t.Setenv("ARENA_ENGINE_MAX_BID_ATTEMPTS", "7")
	t.Setenv("ARENA_SCHEDULER_SWEEP_INTERVAL", "250ms")
	t.Setenv("ARENA_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ARENA_AUCTION_BASE_PRICE", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeServer {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Engine.MaxBidAttempts != 7 {
		t.Errorf("max_bid_attempts = %d, want 7", cfg.Engine.MaxBidAttempts)
	}
	if cfg.Scheduler.SweepInterval.Duration != 250*time.Millisecond {
		t.Errorf("sweep_interval = %v", cfg.Scheduler.SweepInterval)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Auction.BasePrice != 50 {
		t.Errorf("unparsable override should be ignored, base_price = %d", cfg.Auction.BasePrice)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Server.CORSOrigins = []string{"x"}

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != redacted || red.Server.APIKey != redacted {
		t.Errorf("secrets not redacted: %+v", red.Postgres)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original mutated")
	}
	red.Server.CORSOrigins[0] = "y"
	if cfg.Server.CORSOrigins[0] != "x" {
		t.Error("slices shared with original")
	}
}
