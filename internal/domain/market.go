package domain

import "time"

// MarketType enumerates the event families a market can be opened on.
type MarketType string

const (
	MarketTypeMatchWinner   MarketType = "match_winner"
	MarketTypeTotalKills    MarketType = "total_kills"
	MarketTypeTokenVolume   MarketType = "token_volume"
	MarketTypeSurvivalCount MarketType = "survival_count"
	MarketTypeFirstBlood    MarketType = "first_blood"
	MarketTypeMVP           MarketType = "mvp"
)

// Valid reports whether t is a known market type.
func (t MarketType) Valid() bool {
	switch t {
	case MarketTypeMatchWinner, MarketTypeTotalKills, MarketTypeTokenVolume,
		MarketTypeSurvivalCount, MarketTypeFirstBlood, MarketTypeMVP:
		return true
	}
	return false
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusLocked    MarketStatus = "locked"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusResolved || s == MarketStatusCancelled
}

// MarketOption is a single outcome a bettor can back.
type MarketOption struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Odds  Odds   `json:"odds"`
}

// Market is a multi-option, fixed-odds prediction market.
type Market struct {
	ID                        string         `json:"id"`
	CreatorID                 string         `json:"creator_id"`
	MatchID                   string         `json:"match_id,omitempty"`
	Type                      MarketType     `json:"type"`
	Title                     string         `json:"title"`
	Options                   []MarketOption `json:"options"`
	Status                    MarketStatus   `json:"status"`
	TotalPool                 int64          `json:"total_pool"`
	FeeCollected              int64          `json:"fee_collected"`
	WinningOptionID           *int           `json:"winning_option_id,omitempty"`
	GovernanceCooldownSeconds int64          `json:"governance_cooldown_seconds"`
	CreatedAt                 time.Time      `json:"created_at"`
	LockTime                  *time.Time     `json:"lock_time,omitempty"`
	ResolvedAt                *time.Time     `json:"resolved_at,omitempty"`
}

// Option returns the option with the given id.
func (m Market) Option(id int) (MarketOption, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o, true
		}
	}
	return MarketOption{}, false
}

// CooldownEnds is the instant the governance cooldown started at creation elapses.
func (m Market) CooldownEnds() time.Time {
	return m.CreatedAt.Add(time.Duration(m.GovernanceCooldownSeconds) * time.Second)
}

// AcceptsBets reports whether a bet placed at now may be accepted. Status and
// the lock deadline are evaluated together.
func (m Market) AcceptsBets(now time.Time) bool {
	if m.Status != MarketStatusOpen {
		return false
	}
	return m.LockTime == nil || now.Before(*m.LockTime)
}

// BettorType identifies who placed a stake.
type BettorType string

const (
	BettorPlayer    BettorType = "player"
	BettorAgent     BettorType = "agent"
	BettorSpectator BettorType = "spectator"
)

// Valid reports whether t is a known bettor type.
func (t BettorType) Valid() bool {
	switch t {
	case BettorPlayer, BettorAgent, BettorSpectator:
		return true
	}
	return false
}

// BetStatus tracks the bet lifecycle.
type BetStatus string

const (
	BetStatusActive   BetStatus = "active"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusRefunded BetStatus = "refunded"
)

// Bet is a fixed-odds stake on one market option. PotentialPayout is frozen
// when the bet is placed.
type Bet struct {
	ID              string     `json:"id"`
	MarketID        string     `json:"market_id"`
	BettorType      BettorType `json:"bettor_type"`
	BettorID        string     `json:"bettor_id"`
	OptionID        int        `json:"option_id"`
	Amount          int64      `json:"amount"`
	PotentialPayout int64      `json:"potential_payout"`
	Status          BetStatus  `json:"status"`
	PaidOut         int64      `json:"paid_out"`
	CreatedAt       time.Time  `json:"created_at"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

// BetOutcome is the one-time settlement write for a bet.
type BetOutcome struct {
	BetID   string
	Status  BetStatus
	PaidOut int64
}

// MarketSettlement is everything a resolution commits atomically.
type MarketSettlement struct {
	Status          MarketStatus
	WinningOptionID *int
	FeeCollected    int64
	SettledAt       time.Time
	Outcomes        []BetOutcome
	LedgerEntries   []LedgerEntry
}

// SettleFunc computes a settlement from the locked market and its bets that
// are still active. It must be free of side effects: the store may call it
// inside a transaction that is later rolled back.
type SettleFunc func(m Market, active []Bet) (MarketSettlement, error)
