// Package resolver turns transaction signatures into the token, actor and
// amount details the rest of the pipeline works with. It prefers a batched
// enhanced lookup API and falls back to raw getTransaction calls gated by a
// strict rate limiter.
package resolver

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/ratelimit"
	"solana-token-radar/internal/solana"
)

const (
	wsolMint        = "So11111111111111111111111111111111111111112"
	lamportsPerSOL  = 1_000_000_000
	defaultCacheTTL = 10 * time.Minute
)

// TxDetails is the distilled view of a transaction: which mint it touched,
// who initiated it, and how much moved on each side.
type TxDetails struct {
	Signature   string
	Mint        string
	Actor       string
	SolAmount   float64
	TokenAmount float64
	Name        string
	Symbol      string
	// Pool is the bonding-curve or pool address when it can be inferred
	// from the winning transfer. Best effort, may be empty.
	Pool string
}

// Config controls resolver behavior. Zero values fall back to defaults.
type Config struct {
	EnhancedURL string
	APIKey      string
	BatchSize   int
	BatchWindow time.Duration
	CacheTTL    time.Duration
}

// Resolver resolves signatures to TxDetails with per-signature caching and
// in-flight deduplication. Resolve never returns an error: any failure along
// either tier yields nil so callers can drop the event and move on.
type Resolver struct {
	enhanced *enhancedClient
	rpc      solana.RPCClient
	strict   *ratelimit.StrictLimiter
	log      *logrus.Entry
	ttl      time.Duration

	mu       sync.Mutex
	cache    map[string]cacheEntry
	inflight map[string]*inflightCall

	now func() time.Time
}

type cacheEntry struct {
	details   *TxDetails
	expiresAt time.Time
}

type inflightCall struct {
	done    chan struct{}
	details *TxDetails
}

func New(cfg Config, rpc solana.RPCClient, strict *ratelimit.StrictLimiter, log *logrus.Logger) *Resolver {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	r := &Resolver{
		rpc:      rpc,
		strict:   strict,
		log:      log.WithField("component", "resolver"),
		ttl:      ttl,
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]*inflightCall),
		now:      time.Now,
	}
	if cfg.EnhancedURL != "" && cfg.APIKey != "" {
		r.enhanced = newEnhancedClient(cfg.EnhancedURL, cfg.APIKey, &http.Client{Timeout: 15 * time.Second}, cfg.BatchSize, cfg.BatchWindow)
	}
	return r
}

// Resolve returns the details for a signature, or nil when they cannot be
// determined. Concurrent calls for the same signature share a single lookup.
func (r *Resolver) Resolve(ctx context.Context, signature string) *TxDetails {
	r.mu.Lock()
	if entry, ok := r.cache[signature]; ok && r.now().Before(entry.expiresAt) {
		r.mu.Unlock()
		observability.DefaultMetrics.ResolverCacheHits.Inc()
		return entry.details
	}
	if call, ok := r.inflight[signature]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.details
		case <-ctx.Done():
			return nil
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[signature] = call
	r.mu.Unlock()

	details := r.resolve(ctx, signature)

	r.mu.Lock()
	if details != nil {
		r.cache[signature] = cacheEntry{details: details, expiresAt: r.now().Add(r.ttl)}
	}
	delete(r.inflight, signature)
	r.mu.Unlock()

	call.details = details
	close(call.done)
	return details
}

func (r *Resolver) resolve(ctx context.Context, signature string) *TxDetails {
	if r.enhanced != nil {
		if tx := r.enhanced.lookup(ctx, signature); tx != nil {
			if details := projectEnhanced(signature, tx); details != nil {
				return details
			}
		}
		// Enhanced lookup missed or produced nothing usable, try raw.
		observability.DefaultMetrics.ResolverFallbacks.Inc()
	}
	return r.resolveRaw(ctx, signature)
}

// resolveRaw fetches the transaction through the strict limiter and extracts
// details from parsed balances.
func (r *Resolver) resolveRaw(ctx context.Context, signature string) *TxDetails {
	if err := r.strict.Acquire(); err != nil {
		return nil
	}

	tx, err := r.rpc.GetTransaction(ctx, signature)
	if err != nil {
		if errors.Is(err, solana.ErrRateLimited) {
			observability.RecordThrottled()
			r.strict.Record429()
		} else {
			r.strict.RecordFailure()
		}
		r.log.WithError(err).WithField("signature", signature).Debug("raw transaction fetch failed")
		return nil
	}
	r.strict.RecordSuccess()

	if tx == nil {
		return nil
	}
	return extractFromParsed(signature, tx)
}

// projectEnhanced maps an enhanced API object to TxDetails. Wrapped native
// transfers never drive mint selection; among the rest the largest magnitude
// wins.
func projectEnhanced(signature string, tx *enhancedTx) *TxDetails {
	details := &TxDetails{
		Signature: signature,
		Actor:     tx.FeePayer,
		Name:      tx.TokenName,
		Symbol:    tx.TokenSymbol,
	}

	best := 0.0
	for _, tt := range tx.TokenTransfers {
		if tt.Mint == wsolMint || tt.Mint == "" {
			continue
		}
		if amt := math.Abs(tt.TokenAmount); amt > best {
			best = amt
			details.Mint = tt.Mint
			details.TokenAmount = amt
			details.Pool = counterpart(tt, tx.FeePayer)
		}
	}
	if details.Mint == "" {
		return nil
	}

	var lamports uint64
	for _, nt := range tx.NativeTransfers {
		if nt.Amount > lamports {
			lamports = nt.Amount
		}
	}
	details.SolAmount = float64(lamports) / lamportsPerSOL

	return details
}

// extractFromParsed derives details from a jsonParsed transaction. The first
// account key is the fee payer and stands in as the actor. The mint comes
// from token balance deltas, with parsed instruction info as a fallback.
func extractFromParsed(signature string, tx *solana.ParsedTransaction) *TxDetails {
	if tx.Meta == nil || tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return nil
	}

	details := &TxDetails{
		Signature: signature,
		Actor:     tx.Message.AccountKeys[0].Pubkey,
	}

	mint, amount := pickMint(tx.Meta)
	if mint == "" {
		mint = mintFromInstructions(tx.Message.Instructions)
	}
	if mint == "" {
		return nil
	}
	details.Mint = mint
	details.TokenAmount = amount
	details.Pool = poolOwner(tx.Meta, mint, details.Actor)

	if len(tx.Meta.PreBalances) > 0 && len(tx.Meta.PostBalances) > 0 {
		delta := int64(tx.Meta.PostBalances[0]) - int64(tx.Meta.PreBalances[0])
		details.SolAmount = math.Abs(float64(delta)) / lamportsPerSOL
	}

	return details
}

// pickMint computes per-mint balance deltas and returns the non-WSOL mint
// with the largest magnitude.
func pickMint(meta *solana.TransactionMeta) (string, float64) {
	deltas := make(map[string]float64)
	for _, tb := range meta.PostTokenBalances {
		if tb.UITokenAmount.UIAmount != nil {
			deltas[tb.Mint] += *tb.UITokenAmount.UIAmount
		}
	}
	for _, tb := range meta.PreTokenBalances {
		if tb.UITokenAmount.UIAmount != nil {
			deltas[tb.Mint] -= *tb.UITokenAmount.UIAmount
		}
	}

	var (
		mint string
		best float64
	)
	for m, d := range deltas {
		if m == wsolMint {
			continue
		}
		if amt := math.Abs(d); amt > best {
			best = amt
			mint = m
		}
	}
	return mint, best
}

// counterpart returns the account on the other side of a transfer from the
// fee payer. For launch-platform swaps this is the bonding-curve account.
func counterpart(tt tokenTransfer, feePayer string) string {
	if tt.FromUserAccount == feePayer {
		return tt.ToUserAccount
	}
	if tt.ToUserAccount == feePayer {
		return tt.FromUserAccount
	}
	return ""
}

// poolOwner returns the owner of the mint's token balance on the side
// opposite the actor, which for pool swaps is the pool authority.
func poolOwner(meta *solana.TransactionMeta, mint, actor string) string {
	for _, tb := range meta.PostTokenBalances {
		if tb.Mint == mint && tb.Owner != "" && tb.Owner != actor {
			return tb.Owner
		}
	}
	return ""
}

func mintFromInstructions(instructions []solana.ParsedInstruction) string {
	for _, ins := range instructions {
		if ins.Parsed == nil {
			continue
		}
		if m, ok := ins.Parsed.Info["mint"].(string); ok && m != "" && m != wsolMint {
			return m
		}
	}
	return ""
}
