package storage

import (
	"context"
	"time"

	"solana-token-radar/internal/domain"
)

// TokenIndexStore is the persisted token index. Records are keyed by mint
// and upserted: the in-memory cache is the source of truth during the
// process lifetime, the index is the long-term store.
type TokenIndexStore interface {
	// Upsert inserts or fully replaces the record for its mint.
	// Returns ErrInvalidInput when the record is nil or has no mint.
	Upsert(ctx context.Context, r *domain.TokenRecord) error

	// GetByMint retrieves a record by mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenRecord, error)

	// ListRecent retrieves up to limit records ordered by creation time DESC.
	ListRecent(ctx context.Context, limit int) ([]*domain.TokenRecord, error)

	// ListGraduated retrieves all records trading on a liquidity-pool venue.
	ListGraduated(ctx context.Context) ([]*domain.TokenRecord, error)
}

// TradeSink receives classified trade events for offline analysis.
// Implementations are append-only.
type TradeSink interface {
	// InsertBatch appends trade events.
	InsertBatch(ctx context.Context, trades []*domain.TradeEvent) error
}

// SnapshotSink receives periodic token record snapshots.
type SnapshotSink interface {
	// Snapshot appends one point-in-time copy of each record.
	Snapshot(ctx context.Context, records []*domain.TokenRecord, ts time.Time) error
}
