package domain

import (
	"math"
	"time"
)

// Direction is the flow direction of a ledger entry relative to the treasury.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// Well-known ledger transaction types.
const (
	TxMarketDaoFee   = "market_dao_fee"
	TxAuctionSaleFee = "auction_sale_fee"
	// TxMarketHouseExposure is the outflow covering payouts plus fee beyond
	// the market's pool.
	TxMarketHouseExposure = "market_house_exposure"
)

// Well-known fee configuration keys.
const (
	FeeMarketHouse  = "market_house_fee"
	FeeAuctionHouse = "auction_house_fee"
)

// LedgerEntry is an immutable token flow record.
type LedgerEntry struct {
	ID          string            `json:"id"`
	TxType      string            `json:"tx_type"`
	Amount      int64             `json:"amount"`
	Direction   Direction         `json:"direction"`
	RelatedRefs map[string]string `json:"related_refs,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LedgerTotals is the derived sum of every entry by direction.
type LedgerTotals struct {
	Inflow  int64 `json:"inflow"`
	Outflow int64 `json:"outflow"`
}

// Balance is inflow minus outflow.
func (t LedgerTotals) Balance() int64 {
	return t.Inflow - t.Outflow
}

// ppmScale is the parts-per-million scale used for fee rates.
const ppmScale int64 = 1_000_000

// FeeConfig is a governance-controlled fee rule.
type FeeConfig struct {
	FeeType    string    `json:"fee_type"`
	Rate       float64   `json:"rate"`
	FlatAmount int64     `json:"flat_amount"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RatePPM returns the rate in parts per million.
func (c FeeConfig) RatePPM() int64 {
	return RatePPM(c.Rate)
}

// Fee returns ceil(flatAmount + baseAmount * rate).
func (c FeeConfig) Fee(baseAmount int64) int64 {
	return c.FlatAmount + CeilShare(baseAmount, c.RatePPM())
}

// RatePPM converts a fractional rate to parts per million.
func RatePPM(rate float64) int64 {
	return int64(math.Round(rate * float64(ppmScale)))
}

// FloorShare returns floor(amount * ratePPM / 1e6).
func FloorShare(amount, ratePPM int64) int64 {
	return mulDiv(amount, ratePPM, false)
}

// CeilShare returns ceil(amount * ratePPM / 1e6).
func CeilShare(amount, ratePPM int64) int64 {
	return mulDiv(amount, ratePPM, true)
}

func mulDiv(amount, ratePPM int64, ceil bool) int64 {
	if amount <= 0 || ratePPM <= 0 {
		return 0
	}
	// Split to keep amount*ratePPM from overflowing for large amounts.
	whole := amount / ppmScale
	rem := amount % ppmScale
	out := whole * ratePPM
	frac := rem * ratePPM
	out += frac / ppmScale
	if ceil && frac%ppmScale != 0 {
		out++
	}
	return out
}
