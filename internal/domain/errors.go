package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every engine error unwraps to exactly one of these so
// callers can decide between surfacing, retrying, or fixing configuration.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrConfiguration       = errors.New("configuration error")
	ErrLockHeld            = errors.New("lock already held")
)

// kindError is a named error that belongs to one of the categories above.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrMarketClosed        = newKind(ErrStateConflict, "market is not open for betting")
	ErrAlreadyResolved     = newKind(ErrStateConflict, "market already resolved or cancelled")
	ErrAuctionClosed       = newKind(ErrStateConflict, "auction is closed")
	ErrLoyaltyWindowActive = newKind(ErrStateConflict, "loyalty window active: only the owning faction may bid")
	ErrCooldownActive      = newKind(ErrStateConflict, "governance cooldown active")
	ErrBidTooLow           = newKind(ErrValidation, "bid below minimum")
	ErrUnknownFeeType      = newKind(ErrConfiguration, "unknown fee type")
)

// Validationf returns an ErrValidation wrapped with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err is safe to retry. Only lost races qualify;
// nothing partial was committed when they are returned.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
