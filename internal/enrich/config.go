package enrich

import "time"

// CacheEntry wraps one cached value with its expiry instant.
type CacheEntry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// Fresh reports whether the entry is still usable at the given instant.
func (e CacheEntry[T]) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// TTLConfig holds the expiry for each cache family plus the update debounce
// and sweep cadence. Zero values fall back to defaults.
type TTLConfig struct {
	Metadata     time.Duration
	Price        time.Duration
	Volume       time.Duration
	MarketData   time.Duration
	PriceChanges time.Duration
	PairObject   time.Duration

	Debounce      time.Duration
	SweepInterval time.Duration
}

// DefaultTTLConfig returns the production cache lifetimes. Metadata is near
// immutable; price and price changes go stale fastest.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Metadata:      time.Hour,
		Price:         time.Minute,
		Volume:        5 * time.Minute,
		MarketData:    2 * time.Minute,
		PriceChanges:  time.Minute,
		PairObject:    2 * time.Minute,
		Debounce:      750 * time.Millisecond,
		SweepInterval: 5 * time.Minute,
	}
}

func (c TTLConfig) withDefaults() TTLConfig {
	def := DefaultTTLConfig()
	if c.Metadata <= 0 {
		c.Metadata = def.Metadata
	}
	if c.Price <= 0 {
		c.Price = def.Price
	}
	if c.Volume <= 0 {
		c.Volume = def.Volume
	}
	if c.MarketData <= 0 {
		c.MarketData = def.MarketData
	}
	if c.PriceChanges <= 0 {
		c.PriceChanges = def.PriceChanges
	}
	if c.PairObject <= 0 {
		c.PairObject = def.PairObject
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// HeuristicConfig holds the empirically chosen thresholds behind the derived
// record flags. The values are tunable constants, not invariants.
type HeuristicConfig struct {
	// NewTokenMaxAge bounds how long a token counts as new.
	NewTokenMaxAge time.Duration
	// GraduatingLiquidityMin/Max is the pre-graduation liquidity band.
	GraduatingLiquidityMin float64
	GraduatingLiquidityMax float64
	// TrendingVolumeRatio is the 1h-volume to liquidity ratio above which a
	// token counts as trending.
	TrendingVolumeRatio float64

	// BaseRiskScore is assigned to freshly discovered tokens.
	BaseRiskScore int
	// SafeLiquidity discounts risk once pooled liquidity clears it.
	SafeLiquidity float64
	// SafeHolderCount discounts risk once the holder count clears it.
	SafeHolderCount int
}

// DefaultHeuristicConfig returns the tuned production thresholds.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		NewTokenMaxAge:         time.Hour,
		GraduatingLiquidityMin: 8_000,
		GraduatingLiquidityMax: 60_000,
		TrendingVolumeRatio:    2.0,
		BaseRiskScore:          70,
		SafeLiquidity:          50_000,
		SafeHolderCount:        500,
	}
}
