package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// TradeEventStore implements storage.TradeSink using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeSink = (*TradeEventStore)(nil)

// InsertBatch appends trade events. MergeTree is append-only; duplicate
// signatures are tolerated and deduplicated at query time.
func (s *TradeEventStore) InsertBatch(ctx context.Context, trades []*domain.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			mint, side, trader, sol_amount, token_amount, tx_signature, ts
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tr := range trades {
		err = batch.Append(
			tr.Mint, string(tr.Side), tr.Trader,
			tr.SolAmount, tr.TokenAmount, tr.TxSignature, tr.Timestamp,
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

// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
func (s *TradeEventStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeEvent, error) {
	query := `
		SELECT mint, side, trader, sol_amount, token_amount, tx_signature, ts
		FROM trade_events
		WHERE mint = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query trades by mint: %w", err)
	}
	defer rows.Close()

	var trades []*domain.TradeEvent
	for rows.Next() {
		var (
			tr   domain.TradeEvent
			side string
			ts   time.Time
		)
		if err := rows.Scan(&tr.Mint, &side, &tr.Trader, &tr.SolAmount, &tr.TokenAmount, &tr.TxSignature, &ts); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.Side = domain.TradeSide(side)
		tr.Timestamp = ts
		trades = append(trades, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
