package domain

import "time"

// Signal bus channels carrying engine events.
const (
	ChannelMarkets  = "markets"
	ChannelBets     = "bets"
	ChannelAuctions = "auctions"
	ChannelBids     = "bids"
	ChannelLedger   = "ledger"
)

// EventStream is the durable stream every engine event is also appended to.
const EventStream = "stream:engine_events"

// Event is the envelope published for every engine state change.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
