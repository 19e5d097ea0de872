package domain

import "time"

// DiscoverySource represents how a token entered the record map.
type DiscoverySource string

const (
	SourcePumpFun DiscoverySource = "PUMP_FUN"
	SourceRaydium DiscoverySource = "RAYDIUM"
	SourceUnknown DiscoverySource = "UNKNOWN"
)

// String returns the string representation of DiscoverySource.
func (s DiscoverySource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s DiscoverySource) IsValid() bool {
	return s == SourcePumpFun || s == SourceRaydium || s == SourceUnknown
}

// PlaceholderSymbol is assigned when a token's symbol cannot be resolved.
const PlaceholderSymbol = "UNKNOWN"

// WindowCounts holds buy/sell transaction counts for one time window.
type WindowCounts struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// TokenRecord is the enriched view of a token, keyed by mint address.
// Mint is immutable once set. Numeric fields default to zero rather than
// being absent once a record exists. IsNew/IsGraduating/IsTrending and
// AgeMinutes are derived, never authoritative.
type TokenRecord struct {
	Mint         string          `json:"mint"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	ImageURL     string          `json:"imageUrl"`
	Source       DiscoverySource `json:"source"`
	CreatedAt    time.Time       `json:"createdAt"`
	BondingCurve string          `json:"bondingCurve"`
	PairAddress  string          `json:"pairAddress"`
	DexID        string          `json:"dexId"`

	PriceUSD       float64 `json:"priceUsd"`
	PriceChange5m  float64 `json:"priceChange5m"`
	PriceChange1h  float64 `json:"priceChange1h"`
	PriceChange24h float64 `json:"priceChange24h"`
	Volume5m       float64 `json:"volume5m"`
	Volume1h       float64 `json:"volume1h"`
	Volume24h      float64 `json:"volume24h"`
	Liquidity      float64 `json:"liquidity"`
	MarketCap      float64 `json:"marketCap"`
	HolderCount    int     `json:"holderCount"`

	Txns5m  WindowCounts `json:"txns5m"`
	Txns1h  WindowCounts `json:"txns1h"`
	Txns24h WindowCounts `json:"txns24h"`

	IsNew        bool `json:"isNew"`
	IsGraduating bool `json:"isGraduating"`
	IsTrending   bool `json:"isTrending"`

	// RiskScore is 0-100; higher means riskier.
	RiskScore int `json:"riskScore"`

	EnrichedAt       time.Time `json:"enrichedAt"`
	EnrichmentSource string    `json:"enrichmentSource"`
}

// Graduated reports whether the token has left its bonding curve for a
// liquidity-pool venue.
func (t *TokenRecord) Graduated() bool {
	return t.DexID != "" && t.DexID != "pump.fun" && t.DexID != "pumpfun"
}

// AgeMinutes returns minutes elapsed since token creation, computed at read time.
func (t *TokenRecord) AgeMinutes(now time.Time) float64 {
	if t.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(t.CreatedAt).Minutes()
}
