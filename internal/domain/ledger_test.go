package domain

import (
	"errors"
	"math"
	"testing"
)

func TestShares(t *testing.T) {
	tests := []struct {
		amount, ppm int64
		floor, ceil int64
	}{
		{20, 50_000, 1, 1},
		{19, 50_000, 0, 1},
		{110, 50_000, 5, 6},
		{0, 50_000, 0, 0},
		{100, 0, 0, 0},
		{3_000_001, 333_333, 999_999, 1_000_000},
		{math.MaxInt64, 1_000_000, math.MaxInt64, math.MaxInt64},
	}
	for _, tt := range tests {
		if got := FloorShare(tt.amount, tt.ppm); got != tt.floor {
			t.Errorf("FloorShare(%d, %d): got %d, want %d", tt.amount, tt.ppm, got, tt.floor)
		}
		if got := CeilShare(tt.amount, tt.ppm); got != tt.ceil {
			t.Errorf("CeilShare(%d, %d): got %d, want %d", tt.amount, tt.ppm, got, tt.ceil)
		}
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrMarketClosed, ErrStateConflict},
		{ErrAlreadyResolved, ErrStateConflict},
		{ErrAuctionClosed, ErrStateConflict},
		{ErrLoyaltyWindowActive, ErrStateConflict},
		{ErrCooldownActive, ErrStateConflict},
		{ErrBidTooLow, ErrValidation},
		{ErrUnknownFeeType, ErrConfiguration},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v: not a %v", tt.err, tt.kind)
		}
	}
	if !IsRetryable(ErrConcurrencyConflict) || IsRetryable(ErrBidTooLow) {
		t.Error("IsRetryable misclassifies")
	}
}
