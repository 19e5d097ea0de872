package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// RecordSnapshotStore implements storage.SnapshotSink using ClickHouse.
type RecordSnapshotStore struct {
	conn *Conn
}

// NewRecordSnapshotStore creates a new RecordSnapshotStore.
func NewRecordSnapshotStore(conn *Conn) *RecordSnapshotStore {
	return &RecordSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotSink = (*RecordSnapshotStore)(nil)

// Snapshot appends one point-in-time copy of each record.
func (s *RecordSnapshotStore) Snapshot(ctx context.Context, records []*domain.TokenRecord, ts time.Time) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO record_snapshots (
			mint, name, symbol, dex_id, price_usd, liquidity, market_cap,
			volume_24h, holder_count, risk_score, is_new, is_graduating,
			is_trending, ts
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.Mint, r.Name, r.Symbol, r.DexID, r.PriceUSD, r.Liquidity,
			r.MarketCap, r.Volume24h, uint32(r.HolderCount),
			uint8(r.RiskScore), boolToUInt8(r.IsNew),
			boolToUInt8(r.IsGraduating), boolToUInt8(r.IsTrending), ts,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByMint returns how many snapshots exist for a mint.
func (s *RecordSnapshotStore) CountByMint(ctx context.Context, mint string) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM record_snapshots WHERE mint = ?`, mint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots by mint: %w", err)
	}
	return count, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
