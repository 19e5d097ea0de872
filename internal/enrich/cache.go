// Package enrich owns the authoritative in-memory token record map and the
// per-category TTL caches in front of the market-data and on-chain sources.
package enrich

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/events"
	"solana-token-radar/internal/market"
	"solana-token-radar/internal/metadata"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/storage"
)

// MarketClient is the market-data API surface the cache needs. Satisfied by
// *market.Client.
type MarketClient interface {
	PairsByMint(ctx context.Context, mint string) ([]market.Pair, error)
	PairByAddress(ctx context.Context, pairAddress string) (*market.Pair, error)
}

// ChainMetadata resolves on-chain token metadata. Satisfied by
// *metadata.Resolver.
type ChainMetadata interface {
	Resolve(ctx context.Context, mint string) (*metadata.TokenMetadata, error)
}

type metadataValues struct {
	Name     string
	Symbol   string
	ImageURL string
}

type volumeValues struct {
	V5m  float64
	V1h  float64
	V24h float64
}

type marketValues struct {
	Liquidity   float64
	MarketCap   float64
	HolderCount int
	Txns5m      domain.WindowCounts
	Txns1h      domain.WindowCounts
	Txns24h     domain.WindowCounts
}

type changeValues struct {
	P5m  float64
	P1h  float64
	P24h float64
}

// pendingPass marks an in-flight enrichment for one mint. Concurrent callers
// wait on done and share the result.
type pendingPass struct {
	done   chan struct{}
	record *domain.TokenRecord
}

// Cache is the token enrichment cache. One instance per process, explicitly
// constructed and passed to dependents.
type Cache struct {
	market    MarketClient
	chainMeta ChainMetadata
	bus       *events.Bus
	store     storage.TokenIndexStore
	log       *logrus.Entry
	ttl       TTLConfig
	heur      HeuristicConfig

	mu      sync.Mutex
	records map[string]*domain.TokenRecord

	metadata     map[string]CacheEntry[metadataValues]
	price        map[string]CacheEntry[float64]
	volume       map[string]CacheEntry[volumeValues]
	marketData   map[string]CacheEntry[marketValues]
	priceChanges map[string]CacheEntry[changeValues]
	// pairs is keyed by pair address, not mint.
	pairs map[string]CacheEntry[market.Pair]

	pending  map[string]*pendingPass
	debounce map[string]*time.Timer

	// baseCtx bounds background enrichment passes; Start replaces it with
	// the daemon context so shutdown aborts in-flight market calls.
	baseCtx context.Context

	wg  sync.WaitGroup
	now func() time.Time
}

// enrichPassTimeout caps one background fallback-chain execution.
const enrichPassTimeout = 15 * time.Second

// NewCache creates the enrichment cache. store may be nil when no persisted
// index is configured.
func NewCache(marketClient MarketClient, chainMeta ChainMetadata, bus *events.Bus, store storage.TokenIndexStore, ttl TTLConfig, heur HeuristicConfig, log *logrus.Logger) *Cache {
	if heur == (HeuristicConfig{}) {
		heur = DefaultHeuristicConfig()
	}
	return &Cache{
		market:       marketClient,
		chainMeta:    chainMeta,
		bus:          bus,
		store:        store,
		log:          log.WithField("component", "enrich"),
		ttl:          ttl.withDefaults(),
		heur:         heur,
		records:      make(map[string]*domain.TokenRecord),
		metadata:     make(map[string]CacheEntry[metadataValues]),
		price:        make(map[string]CacheEntry[float64]),
		volume:       make(map[string]CacheEntry[volumeValues]),
		marketData:   make(map[string]CacheEntry[marketValues]),
		priceChanges: make(map[string]CacheEntry[changeValues]),
		pairs:        make(map[string]CacheEntry[market.Pair]),
		pending:      make(map[string]*pendingPass),
		debounce:     make(map[string]*time.Timer),
		baseCtx:      context.Background(),
		now:          time.Now,
	}
}

// Register wires the cache to the bus event kinds it consumes. Returns an
// unsubscribe function.
func (c *Cache) Register() func() {
	u1 := c.bus.Subscribe(domain.EventNewToken, func(ev domain.Event) {
		if ev.NewToken != nil {
			c.HandleNewToken(*ev.NewToken)
		}
	})
	u2 := c.bus.Subscribe(domain.EventTrade, func(ev domain.Event) {
		if ev.Trade != nil {
			c.HandleTrade(*ev.Trade)
		}
	})
	u3 := c.bus.Subscribe(domain.EventGraduation, func(ev domain.Event) {
		if ev.Graduation != nil {
			c.HandleGraduation(*ev.Graduation)
		}
	})
	return func() {
		u1()
		u2()
		u3()
	}
}

// Start launches the periodic sweep and adopts ctx as the bound for
// background enrichment passes. The sweep stops when ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.ttl.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(c.now())
			}
		}
	}()
}

// Stop cancels pending debounce timers and waits for the sweep loop.
func (c *Cache) Stop() {
	c.mu.Lock()
	for mint, timer := range c.debounce {
		timer.Stop()
		delete(c.debounce, mint)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Get returns a copy of the record for a mint, with derived flags recomputed
// at read time, or nil when the mint is unknown.
func (c *Cache) Get(mint string) *domain.TokenRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[mint]
	if !ok {
		return nil
	}
	c.recomputeLocked(rec, c.now())
	out := *rec
	return &out
}

// Records returns copies of every record, for snapshotting.
func (c *Cache) Records() []*domain.TokenRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.TokenRecord, 0, len(c.records))
	for _, rec := range c.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// WarmStart preloads records from the persisted index.
func (c *Cache) WarmStart(ctx context.Context, limit int) error {
	if c.store == nil {
		return nil
	}
	records, err := c.store.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if _, exists := c.records[r.Mint]; exists {
			continue
		}
		cp := *r
		c.records[r.Mint] = &cp
	}
	c.log.WithField("records", len(records)).Info("warm-started from token index")
	return nil
}

// Enrich returns the freshest practical view of a token, walking the
// fallback chain while keeping external calls to a minimum. At most one pass
// per mint runs at a time; concurrent callers share its result. A failed
// refresh never clears known-good data.
func (c *Cache) Enrich(ctx context.Context, mint string) *domain.TokenRecord {
	if mint == "" {
		return nil
	}

	c.mu.Lock()
	if p, ok := c.pending[mint]; ok {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.record
		case <-ctx.Done():
			return nil
		}
	}
	p := &pendingPass{done: make(chan struct{})}
	c.pending[mint] = p
	c.mu.Unlock()

	start := c.now()
	rec := c.runPass(ctx, mint)

	source := "none"
	if rec != nil && rec.EnrichmentSource != "" {
		source = rec.EnrichmentSource
	}
	observability.RecordEnrichmentPass(source, c.now().Sub(start).Seconds())

	c.mu.Lock()
	delete(c.pending, mint)
	c.mu.Unlock()

	p.record = rec
	close(p.done)
	return rec
}

// runPass executes the fallback chain for one mint.
func (c *Cache) runPass(ctx context.Context, mint string) *domain.TokenRecord {
	now := c.now()

	c.mu.Lock()
	rec := c.recordLocked(mint, now)

	// Step 1: every category cache fresh, zero network calls.
	if c.allFreshLocked(mint, now) {
		c.applyCachedLocked(rec, mint)
		rec.EnrichedAt = now
		rec.EnrichmentSource = "cache"
		c.recomputeLocked(rec, now)
		out := *rec
		c.mu.Unlock()
		return &out
	}

	// Step 2: cached pair object for a known pair address.
	pairAddr := rec.PairAddress
	if pairAddr != "" {
		if entry, ok := c.pairs[pairAddr]; ok && entry.Fresh(now) {
			pair := entry.Value
			c.applyPairLocked(rec, &pair, now)
			out := *rec
			c.mu.Unlock()
			return &out
		}
	}
	c.mu.Unlock()

	// Step 3: single-pair lookup by known pair address.
	if pairAddr != "" {
		if pair, err := c.market.PairByAddress(ctx, pairAddr); err == nil && pair != nil {
			return c.adoptPair(mint, pair)
		}
	}

	// Step 4: multi-pair lookup by mint, pick the venue-preferred pair.
	if pairs, err := c.market.PairsByMint(ctx, mint); err == nil && len(pairs) > 0 {
		if pair := c.choosePair(mint, pairs); pair != nil {
			return c.adoptPair(mint, pair)
		}
	}

	// Step 5: on-chain metadata, no market API involved.
	if meta, err := c.chainMeta.Resolve(ctx, mint); err == nil && meta != nil {
		now = c.now()
		c.mu.Lock()
		rec = c.recordLocked(mint, now)
		mv := metadataValues{Name: meta.Name, Symbol: meta.Symbol, ImageURL: meta.ImageURL}
		c.metadata[mint] = CacheEntry[metadataValues]{Value: mv, ExpiresAt: now.Add(c.ttl.Metadata)}
		applyMetadata(rec, mv)
		rec.EnrichedAt = now
		rec.EnrichmentSource = "onchain"
		c.recomputeLocked(rec, now)
		out := *rec
		c.mu.Unlock()
		return &out
	}

	// Step 6: everything failed, keep whatever we already know.
	c.mu.Lock()
	rec = c.recordLocked(mint, c.now())
	c.recomputeLocked(rec, c.now())
	out := *rec
	c.mu.Unlock()
	return &out
}

// adoptPair caches the pair and applies it to the record.
func (c *Cache) adoptPair(mint string, pair *market.Pair) *domain.TokenRecord {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if pair.PairAddress != "" {
		c.pairs[pair.PairAddress] = CacheEntry[market.Pair]{Value: *pair, ExpiresAt: now.Add(c.ttl.PairObject)}
	}

	rec := c.recordLocked(mint, now)
	c.applyPairLocked(rec, pair, now)
	out := *rec
	return &out
}

// choosePair picks the pair matching the token's venue, else the one with
// the deepest liquidity. Post-graduation the pool venue wins, pre-graduation
// the launch venue.
func (c *Cache) choosePair(mint string, pairs []market.Pair) *market.Pair {
	c.mu.Lock()
	graduated := false
	if rec, ok := c.records[mint]; ok {
		graduated = rec.Graduated()
	}
	c.mu.Unlock()

	preferred := "pumpfun"
	if graduated {
		preferred = "raydium"
	}

	var best *market.Pair
	for i := range pairs {
		p := &pairs[i]
		if strings.EqualFold(p.DexID, preferred) {
			return p
		}
		if best == nil || liquidityUSD(p) > liquidityUSD(best) {
			best = p
		}
	}
	return best
}

// applyPairLocked derives all five category caches from one pair object and
// merges it into the record. Caller holds c.mu.
func (c *Cache) applyPairLocked(rec *domain.TokenRecord, pair *market.Pair, now time.Time) {
	mint := rec.Mint

	mv := metadataValues{Name: pair.BaseToken.Name, Symbol: pair.BaseToken.Symbol}
	if pair.Info != nil {
		mv.ImageURL = pair.Info.ImageURL
	}
	priceUSD, _ := strconv.ParseFloat(pair.PriceUSD, 64)
	vv := volumeValues{V5m: pair.Volume.M5, V1h: pair.Volume.H1, V24h: pair.Volume.H24}
	mk := marketValues{
		Liquidity:   liquidityUSD(pair),
		MarketCap:   pair.MarketCap,
		HolderCount: pair.Holders,
		Txns5m:      domain.WindowCounts{Buys: pair.Txns.M5.Buys, Sells: pair.Txns.M5.Sells},
		Txns1h:      domain.WindowCounts{Buys: pair.Txns.H1.Buys, Sells: pair.Txns.H1.Sells},
		Txns24h:     domain.WindowCounts{Buys: pair.Txns.H24.Buys, Sells: pair.Txns.H24.Sells},
	}
	cv := changeValues{P5m: pair.PriceChange.M5, P1h: pair.PriceChange.H1, P24h: pair.PriceChange.H24}

	c.metadata[mint] = CacheEntry[metadataValues]{Value: mv, ExpiresAt: now.Add(c.ttl.Metadata)}
	c.price[mint] = CacheEntry[float64]{Value: priceUSD, ExpiresAt: now.Add(c.ttl.Price)}
	c.volume[mint] = CacheEntry[volumeValues]{Value: vv, ExpiresAt: now.Add(c.ttl.Volume)}
	c.marketData[mint] = CacheEntry[marketValues]{Value: mk, ExpiresAt: now.Add(c.ttl.MarketData)}
	c.priceChanges[mint] = CacheEntry[changeValues]{Value: cv, ExpiresAt: now.Add(c.ttl.PriceChanges)}

	applyMetadata(rec, mv)
	rec.PriceUSD = priceUSD
	applyVolume(rec, vv)
	applyMarket(rec, mk)
	applyChanges(rec, cv)

	if pair.PairAddress != "" {
		rec.PairAddress = pair.PairAddress
	}
	if pair.DexID != "" {
		rec.DexID = pair.DexID
	}
	rec.EnrichedAt = now
	rec.EnrichmentSource = "market"
	c.recomputeLocked(rec, now)
}

// allFreshLocked reports whether all five mint-keyed families are fresh.
func (c *Cache) allFreshLocked(mint string, now time.Time) bool {
	if e, ok := c.metadata[mint]; !ok || !e.Fresh(now) {
		return false
	}
	if e, ok := c.price[mint]; !ok || !e.Fresh(now) {
		return false
	}
	if e, ok := c.volume[mint]; !ok || !e.Fresh(now) {
		return false
	}
	if e, ok := c.marketData[mint]; !ok || !e.Fresh(now) {
		return false
	}
	if e, ok := c.priceChanges[mint]; !ok || !e.Fresh(now) {
		return false
	}
	return true
}

// applyCachedLocked merges all cached category values into the record.
// Caller has verified freshness and holds c.mu.
func (c *Cache) applyCachedLocked(rec *domain.TokenRecord, mint string) {
	applyMetadata(rec, c.metadata[mint].Value)
	rec.PriceUSD = c.price[mint].Value
	applyVolume(rec, c.volume[mint].Value)
	applyMarket(rec, c.marketData[mint].Value)
	applyChanges(rec, c.priceChanges[mint].Value)
}

// applyMetadata merges metadata without clearing known-good values.
func applyMetadata(rec *domain.TokenRecord, mv metadataValues) {
	if mv.Name != "" {
		rec.Name = mv.Name
	}
	if mv.Symbol != "" {
		rec.Symbol = mv.Symbol
	}
	if mv.ImageURL != "" {
		rec.ImageURL = mv.ImageURL
	}
	if rec.Symbol == "" {
		rec.Symbol = domain.PlaceholderSymbol
	}
}

func applyVolume(rec *domain.TokenRecord, vv volumeValues) {
	rec.Volume5m = vv.V5m
	rec.Volume1h = vv.V1h
	rec.Volume24h = vv.V24h
}

func applyMarket(rec *domain.TokenRecord, mk marketValues) {
	rec.Liquidity = mk.Liquidity
	rec.MarketCap = mk.MarketCap
	if mk.HolderCount > 0 {
		rec.HolderCount = mk.HolderCount
	}
	rec.Txns5m = mk.Txns5m
	rec.Txns1h = mk.Txns1h
	rec.Txns24h = mk.Txns24h
}

func applyChanges(rec *domain.TokenRecord, cv changeValues) {
	rec.PriceChange5m = cv.P5m
	rec.PriceChange1h = cv.P1h
	rec.PriceChange24h = cv.P24h
}

func liquidityUSD(p *market.Pair) float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// recordLocked returns the record for a mint, creating a minimal one when
// the mint has never been observed. Caller holds c.mu.
func (c *Cache) recordLocked(mint string, now time.Time) *domain.TokenRecord {
	if rec, ok := c.records[mint]; ok {
		return rec
	}
	rec := &domain.TokenRecord{
		Mint:      mint,
		Symbol:    domain.PlaceholderSymbol,
		Source:    domain.SourceUnknown,
		CreatedAt: now,
		RiskScore: c.heur.BaseRiskScore,
	}
	c.records[mint] = rec
	return rec
}

// recomputeLocked refreshes the derived flags and risk score. Caller holds
// c.mu.
func (c *Cache) recomputeLocked(rec *domain.TokenRecord, now time.Time) {
	rec.IsNew = rec.AgeMinutes(now) <= c.heur.NewTokenMaxAge.Minutes()
	rec.IsGraduating = !rec.Graduated() &&
		rec.Liquidity >= c.heur.GraduatingLiquidityMin &&
		rec.Liquidity < c.heur.GraduatingLiquidityMax
	rec.IsTrending = rec.Liquidity > 0 && rec.Volume1h/rec.Liquidity >= c.heur.TrendingVolumeRatio

	risk := c.heur.BaseRiskScore
	if rec.Graduated() {
		risk -= 15
	}
	if rec.Liquidity >= c.heur.SafeLiquidity {
		risk -= 20
	}
	if rec.HolderCount >= c.heur.SafeHolderCount {
		risk -= 10
	}
	if risk < 0 {
		risk = 0
	}
	if risk > 100 {
		risk = 100
	}
	rec.RiskScore = risk
}

// HandleNewToken creates the record for a freshly launched token.
func (c *Cache) HandleNewToken(ev domain.NewTokenEvent) {
	now := c.now()
	createdAt := ev.Timestamp
	if createdAt.IsZero() {
		createdAt = now
	}

	c.mu.Lock()
	rec, exists := c.records[ev.Mint]
	if !exists {
		rec = &domain.TokenRecord{
			Mint:      ev.Mint,
			Source:    domain.SourcePumpFun,
			CreatedAt: createdAt,
		}
		c.records[ev.Mint] = rec
	}
	if ev.Name != "" {
		rec.Name = ev.Name
	}
	if ev.Symbol != "" {
		rec.Symbol = ev.Symbol
	} else if rec.Symbol == "" {
		rec.Symbol = domain.PlaceholderSymbol
	}
	if ev.BondingCurve != "" {
		rec.BondingCurve = ev.BondingCurve
	}
	// A duplicate create must not clobber a market-derived figure.
	if !exists || rec.Liquidity == 0 {
		rec.Liquidity = ev.InitialLiquidity
	}
	rec.IsNew = true
	rec.RiskScore = c.heur.BaseRiskScore
	out := *rec
	c.mu.Unlock()

	c.persist(&out)
	c.publishUpdate(out)
	c.enrichAsync(ev.Mint)
}

// HandleTrade folds one classified trade into the record and schedules a
// debounced update so bursts collapse into one broadcast.
func (c *Cache) HandleTrade(ev domain.TradeEvent) {
	c.mu.Lock()
	rec := c.recordLocked(ev.Mint, c.now())
	switch ev.Side {
	case domain.TradeBuy:
		rec.Txns5m.Buys++
		rec.Txns1h.Buys++
		rec.Txns24h.Buys++
	case domain.TradeSell:
		rec.Txns5m.Sells++
		rec.Txns1h.Sells++
		rec.Txns24h.Sells++
	}
	c.mu.Unlock()

	c.scheduleUpdate(ev.Mint)
}

// HandleGraduation moves the record to its liquidity-pool venue. Accumulated
// volume and transaction counters are preserved.
func (c *Cache) HandleGraduation(ev domain.GraduationEvent) {
	c.mu.Lock()
	rec := c.recordLocked(ev.Mint, c.now())
	if rec.Source == domain.SourceUnknown || rec.Source == "" {
		rec.Source = domain.SourceRaydium
	}
	if ev.DexID != "" {
		rec.DexID = ev.DexID
	}
	if ev.PairAddress != "" {
		rec.PairAddress = ev.PairAddress
	}
	rec.IsGraduating = false
	out := *rec
	c.mu.Unlock()

	c.persist(&out)
	c.publishUpdate(out)
	c.enrichAsync(ev.Mint)
}

// scheduleUpdate arms the per-mint debounce timer. A timer already armed
// means the pending broadcast will cover this change too.
func (c *Cache) scheduleUpdate(mint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, armed := c.debounce[mint]; armed {
		return
	}
	c.debounce[mint] = time.AfterFunc(c.ttl.Debounce, func() {
		c.fireUpdate(mint)
	})
}

func (c *Cache) fireUpdate(mint string) {
	c.mu.Lock()
	delete(c.debounce, mint)
	rec, ok := c.records[mint]
	var out domain.TokenRecord
	if ok {
		c.recomputeLocked(rec, c.now())
		out = *rec
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.persist(&out)
	c.publishUpdate(out)

	// Trade-discovered mints never saw a create event; refresh them once
	// their market data goes stale.
	if c.now().Sub(out.EnrichedAt) > c.ttl.MarketData {
		c.enrichAsync(mint)
	}
}

// enrichAsync runs one fallback-chain pass off the event path. The result is
// persisted and broadcast only when the pass actually refreshed the record,
// so a total-failure pass produces no duplicate update.
func (c *Cache) enrichAsync(mint string) {
	c.mu.Lock()
	base := c.baseCtx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(base, enrichPassTimeout)
		defer cancel()

		start := c.now()
		rec := c.Enrich(ctx, mint)
		if rec == nil || rec.EnrichedAt.Before(start) {
			return
		}
		c.persist(rec)
		c.publishUpdate(*rec)
	}()
}

func (c *Cache) publishUpdate(rec domain.TokenRecord) {
	c.bus.Publish(domain.Event{
		Kind:        domain.EventTokenUpdate,
		TokenUpdate: &domain.TokenUpdateEvent{Record: rec},
	})
}

func (c *Cache) persist(rec *domain.TokenRecord) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Upsert(ctx, rec); err != nil {
		observability.DefaultMetrics.IndexUpsertErrors.Inc()
		c.log.WithError(err).WithField("mint", rec.Mint).Warn("token index upsert failed")
	}
}

// sweep evicts expired entries across all six cache families.
func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.metadata {
		if !e.Fresh(now) {
			delete(c.metadata, k)
			evicted++
		}
	}
	for k, e := range c.price {
		if !e.Fresh(now) {
			delete(c.price, k)
			evicted++
		}
	}
	for k, e := range c.volume {
		if !e.Fresh(now) {
			delete(c.volume, k)
			evicted++
		}
	}
	for k, e := range c.marketData {
		if !e.Fresh(now) {
			delete(c.marketData, k)
			evicted++
		}
	}
	for k, e := range c.priceChanges {
		if !e.Fresh(now) {
			delete(c.priceChanges, k)
			evicted++
		}
	}
	for k, e := range c.pairs {
		if !e.Fresh(now) {
			delete(c.pairs, k)
			evicted++
		}
	}
	if evicted > 0 {
		observability.DefaultMetrics.CacheSweepEvicted.Add(float64(evicted))
		c.log.WithField("evicted", evicted).Debug("cache sweep")
	}
	observability.UpdateTrackedTokens(len(c.records))
}

var (
	_ MarketClient  = (*market.Client)(nil)
	_ ChainMetadata = (*metadata.Resolver)(nil)
)
