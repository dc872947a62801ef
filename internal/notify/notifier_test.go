package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingSender struct {
	name string
	err  error
	got  []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.got = append(r.got, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"market_resolved", " auction_sold "}, discardLogger())

	ctx := context.Background()
	for _, ev := range []string{"market_resolved", "bet_placed", "auction_sold"} {
		if err := n.Notify(ctx, ev, ev, "msg"); err != nil {
			t.Fatalf("Notify(%s): %v", ev, err)
		}
	}
	if len(s.got) != 2 || s.got[0] != "market_resolved" || s.got[1] != "auction_sold" {
		t.Errorf("delivered %v, want [market_resolved auction_sold]", s.got)
	}
}

func TestNotifyContinuesPastFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "sweep_failed", "Sweep failed", "x")
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped boom", err)
	}
	if len(good.got) != 1 {
		t.Errorf("good sender got %d messages, want 1", len(good.got))
	}
}

func TestDiscordSender(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Market resolved", "m-1 paid 150"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "Market resolved" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m"); err == nil {
		t.Error("expected error on 429")
	}
}
