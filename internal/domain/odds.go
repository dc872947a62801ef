package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// OddsScale is the fixed-point scale for Odds.
const OddsScale int64 = 1_000_000

// Odds is a fixed-point payout multiplier: odds * 1e6. Payouts computed from
// it are exact integer math, so 10 tokens at 2.3 pay 23, not 22.
type Odds int64

var (
	_ json.Marshaler   = Odds(0)
	_ json.Unmarshaler = (*Odds)(nil)
)

// OddsFromFloat converts a decimal multiplier (e.g. 2.5) to fixed point.
func OddsFromFloat(f float64) Odds {
	return Odds(math.Round(f * float64(OddsScale)))
}

// Float returns the decimal multiplier.
func (o Odds) Float() float64 {
	return float64(o) / float64(OddsScale)
}

// Payout returns floor(amount * odds). ok is false when the product would
// overflow int64 or either operand is negative.
func (o Odds) Payout(amount int64) (payout int64, ok bool) {
	if amount < 0 || o < 0 {
		return 0, false
	}
	if amount != 0 && int64(o) > math.MaxInt64/amount {
		return 0, false
	}
	return amount * int64(o) / OddsScale, true
}

// MarshalJSON renders odds as a decimal number ("2.5" -> 2.5).
func (o Odds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(o.Float(), 'f', -1, 64)), nil
}

var errOddsRange = errors.New("odds: value out of range")

// UnmarshalJSON accepts a decimal number or a quoted decimal string. Digits
// beyond six decimal places are truncated.
func (o *Odds) UnmarshalJSON(data []byte) error {
	if len(data) > 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	if len(data) == 0 {
		return fmt.Errorf("odds: empty value")
	}

	var res int64
	i := 0
	for i < len(data) && data[i] != '.' {
		c := data[i]
		if c < '0' || c > '9' {
			return fmt.Errorf("odds: invalid character %q", c)
		}
		d := int64(c-'0') * OddsScale
		if res > (math.MaxInt64-d)/10 {
			return errOddsRange
		}
		res = res*10 + d
		i++
	}

	if i < len(data) && data[i] == '.' {
		i++
		mult := OddsScale
		for i < len(data) {
			c := data[i]
			if c < '0' || c > '9' {
				return fmt.Errorf("odds: invalid character %q", c)
			}
			mult /= 10
			d := int64(c-'0') * mult
			if res > math.MaxInt64-d {
				return errOddsRange
			}
			res += d
			i++
		}
	}

	*o = Odds(res)
	return nil
}
