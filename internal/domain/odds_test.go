package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestOddsUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Odds
		wantErr bool
	}{
		{`2`, 2_000_000, false},
		{`2.5`, 2_500_000, false},
		{`"3.25"`, 3_250_000, false},
		{`1.0000001`, 1_000_000, false},
		{`2.3`, 2_300_000, false},
		{`-2`, 0, true},
		{`"abc"`, 0, true},
		{`""`, 0, true},
		{`9223372036854.775807`, math.MaxInt64, false},
		{`"9223372036854.775807999"`, math.MaxInt64, false},
		{`9223372036854.775808`, 0, true},
		{`9223372036855`, 0, true},
		{`27670116110564.327424`, 0, true},
		{`"99999999999999999999"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var o Odds
			err := json.Unmarshal([]byte(tt.in), &o)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && o != tt.want {
				t.Errorf("got %d, want %d", o, tt.want)
			}
		})
	}
}

func TestOddsPayout(t *testing.T) {
	tests := []struct {
		odds   Odds
		amount int64
		want   int64
		ok     bool
	}{
		{OddsFromFloat(2.0), 10, 20, true},
		{OddsFromFloat(2.3), 10, 23, true},
		{OddsFromFloat(1.5), 3, 4, true},
		{OddsFromFloat(2.0), math.MaxInt64 / 2, 0, false},
		{OddsFromFloat(2.0), -1, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.odds.Payout(tt.amount)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%d.Payout(%d): got %d/%v, want %d/%v", tt.odds, tt.amount, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOddsMarshalJSON(t *testing.T) {
	b, err := json.Marshal(MarketOption{ID: 1, Label: "A", Odds: OddsFromFloat(2.5)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(b), `{"id":1,"label":"A","odds":2.5}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
