package domain

import "time"

// EventKind identifies a domain event variant. The set is closed: each kind
// has a fixed payload field set on Event.
type EventKind string

const (
	EventNewToken    EventKind = "new_token"
	EventTrade       EventKind = "trade"
	EventGraduation  EventKind = "graduation"
	EventTokenUpdate EventKind = "token_update"
)

// IsValid checks if the kind is a valid value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventNewToken, EventTrade, EventGraduation, EventTokenUpdate:
		return true
	}
	return false
}

// NewTokenEvent is emitted when a token creation is observed on-chain.
type NewTokenEvent struct {
	Mint             string
	Name             string
	Symbol           string
	Creator          string
	BondingCurve     string
	InitialLiquidity float64
	TxSignature      string
	Timestamp        time.Time
}

// TradeSide distinguishes buys from sells.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// TradeEvent is emitted for a single classified buy or sell.
type TradeEvent struct {
	Mint        string
	Side        TradeSide
	Trader      string
	SolAmount   float64
	TokenAmount float64
	TxSignature string
	Timestamp   time.Time
}

// GraduationEvent is emitted when a token migrates from its bonding curve
// to a liquidity-pool venue.
type GraduationEvent struct {
	Mint        string
	PairAddress string
	DexID       string
	TxSignature string
	Timestamp   time.Time
}

// TokenUpdateEvent carries the full refreshed record after enrichment or a
// debounced trade burst.
type TokenUpdateEvent struct {
	Record TokenRecord
}

// Event is the tagged union delivered to subscribers. Exactly one payload
// pointer is non-nil, matching Kind.
type Event struct {
	Kind        EventKind
	NewToken    *NewTokenEvent
	Trade       *TradeEvent
	Graduation  *GraduationEvent
	TokenUpdate *TokenUpdateEvent
}
