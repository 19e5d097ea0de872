package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// TokenIndexStore implements storage.TokenIndexStore using PostgreSQL.
type TokenIndexStore struct {
	pool *Pool
}

// NewTokenIndexStore creates a new TokenIndexStore.
func NewTokenIndexStore(pool *Pool) *TokenIndexStore {
	return &TokenIndexStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenIndexStore = (*TokenIndexStore)(nil)

const tokenIndexColumns = `
	mint, name, symbol, image_url, source, created_at, bonding_curve,
	pair_address, dex_id, price_usd, price_change_5m, price_change_1h,
	price_change_24h, volume_5m, volume_1h, volume_24h, liquidity,
	market_cap, holder_count, txns_5m_buys, txns_5m_sells, txns_1h_buys,
	txns_1h_sells, txns_24h_buys, txns_24h_sells, is_new, is_graduating,
	is_trending, risk_score, enriched_at, enrichment_source
`

// Upsert inserts or fully replaces the record for its mint.
func (s *TokenIndexStore) Upsert(ctx context.Context, r *domain.TokenRecord) error {
	if r == nil || r.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_index (` + tokenIndexColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27,
			$28, $29, $30, $31)
		ON CONFLICT (mint) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			image_url = EXCLUDED.image_url,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at,
			bonding_curve = EXCLUDED.bonding_curve,
			pair_address = EXCLUDED.pair_address,
			dex_id = EXCLUDED.dex_id,
			price_usd = EXCLUDED.price_usd,
			price_change_5m = EXCLUDED.price_change_5m,
			price_change_1h = EXCLUDED.price_change_1h,
			price_change_24h = EXCLUDED.price_change_24h,
			volume_5m = EXCLUDED.volume_5m,
			volume_1h = EXCLUDED.volume_1h,
			volume_24h = EXCLUDED.volume_24h,
			liquidity = EXCLUDED.liquidity,
			market_cap = EXCLUDED.market_cap,
			holder_count = EXCLUDED.holder_count,
			txns_5m_buys = EXCLUDED.txns_5m_buys,
			txns_5m_sells = EXCLUDED.txns_5m_sells,
			txns_1h_buys = EXCLUDED.txns_1h_buys,
			txns_1h_sells = EXCLUDED.txns_1h_sells,
			txns_24h_buys = EXCLUDED.txns_24h_buys,
			txns_24h_sells = EXCLUDED.txns_24h_sells,
			is_new = EXCLUDED.is_new,
			is_graduating = EXCLUDED.is_graduating,
			is_trending = EXCLUDED.is_trending,
			risk_score = EXCLUDED.risk_score,
			enriched_at = EXCLUDED.enriched_at,
			enrichment_source = EXCLUDED.enrichment_source,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		r.Mint, r.Name, r.Symbol, r.ImageURL, string(r.Source), r.CreatedAt,
		r.BondingCurve, r.PairAddress, r.DexID, r.PriceUSD, r.PriceChange5m,
		r.PriceChange1h, r.PriceChange24h, r.Volume5m, r.Volume1h,
		r.Volume24h, r.Liquidity, r.MarketCap, r.HolderCount,
		r.Txns5m.Buys, r.Txns5m.Sells, r.Txns1h.Buys, r.Txns1h.Sells,
		r.Txns24h.Buys, r.Txns24h.Sells, r.IsNew, r.IsGraduating,
		r.IsTrending, r.RiskScore, r.EnrichedAt, r.EnrichmentSource,
	)
	if err != nil {
		return fmt.Errorf("upsert token record: %w", err)
	}
	return nil
}

// GetByMint retrieves a record by mint. Returns ErrNotFound if not exists.
func (s *TokenIndexStore) GetByMint(ctx context.Context, mint string) (*domain.TokenRecord, error) {
	query := `SELECT ` + tokenIndexColumns + ` FROM token_index WHERE mint = $1`

	row := s.pool.QueryRow(ctx, query, mint)
	r, err := scanTokenRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token record by mint: %w", err)
	}
	return r, nil
}

// ListRecent retrieves up to limit records ordered by creation time DESC.
func (s *TokenIndexStore) ListRecent(ctx context.Context, limit int) ([]*domain.TokenRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + tokenIndexColumns + `
		FROM token_index
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent token records: %w", err)
	}
	defer rows.Close()

	return scanTokenRecords(rows)
}

// ListGraduated retrieves all records trading on a liquidity-pool venue.
func (s *TokenIndexStore) ListGraduated(ctx context.Context) ([]*domain.TokenRecord, error) {
	query := `SELECT ` + tokenIndexColumns + `
		FROM token_index
		WHERE dex_id <> '' AND dex_id NOT IN ('pump.fun', 'pumpfun')
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list graduated token records: %w", err)
	}
	defer rows.Close()

	return scanTokenRecords(rows)
}

// scanTokenRecord scans a single row into a TokenRecord.
func scanTokenRecord(row pgx.Row) (*domain.TokenRecord, error) {
	var (
		r      domain.TokenRecord
		source string
	)

	err := row.Scan(
		&r.Mint, &r.Name, &r.Symbol, &r.ImageURL, &source, &r.CreatedAt,
		&r.BondingCurve, &r.PairAddress, &r.DexID, &r.PriceUSD,
		&r.PriceChange5m, &r.PriceChange1h, &r.PriceChange24h, &r.Volume5m,
		&r.Volume1h, &r.Volume24h, &r.Liquidity, &r.MarketCap,
		&r.HolderCount, &r.Txns5m.Buys, &r.Txns5m.Sells, &r.Txns1h.Buys,
		&r.Txns1h.Sells, &r.Txns24h.Buys, &r.Txns24h.Sells, &r.IsNew,
		&r.IsGraduating, &r.IsTrending, &r.RiskScore, &r.EnrichedAt,
		&r.EnrichmentSource,
	)
	if err != nil {
		return nil, err
	}

	r.Source = domain.DiscoverySource(source)
	return &r, nil
}

func scanTokenRecords(rows pgx.Rows) ([]*domain.TokenRecord, error) {
	var records []*domain.TokenRecord
	for rows.Next() {
		r, err := scanTokenRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token records: %w", err)
	}
	return records, nil
}
