package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
)

func TestTradeEventStore_InsertBatchAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeEventStore(conn)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	trades := []*domain.TradeEvent{
		{Mint: "mint1", Side: domain.TradeBuy, Trader: "t1", SolAmount: 0.5, TokenAmount: 1000, TxSignature: "sig1", Timestamp: base},
		{Mint: "mint1", Side: domain.TradeSell, Trader: "t2", SolAmount: 0.3, TokenAmount: 600, TxSignature: "sig2", Timestamp: base.Add(time.Second)},
		{Mint: "mint2", Side: domain.TradeBuy, Trader: "t3", SolAmount: 1.0, TokenAmount: 50, TxSignature: "sig3", Timestamp: base.Add(2 * time.Second)},
	}

	require.NoError(t, store.InsertBatch(ctx, trades))

	got, err := store.GetByMint(ctx, "mint1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sig1", got[0].TxSignature)
	assert.Equal(t, domain.TradeBuy, got[0].Side)
	assert.Equal(t, "sig2", got[1].TxSignature)
	assert.Equal(t, domain.TradeSell, got[1].Side)
	assert.InDelta(t, 0.5, got[0].SolAmount, 1e-9)
}

func TestTradeEventStore_EmptyBatchIsNoop(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeEventStore(conn)
	require.NoError(t, store.InsertBatch(context.Background(), nil))
}

func TestRecordSnapshotStore_Snapshot(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRecordSnapshotStore(conn)
	ctx := context.Background()

	records := []*domain.TokenRecord{
		{Mint: "mint1", Name: "Token One", Symbol: "ONE", DexID: "raydium", PriceUSD: 0.01, Liquidity: 5000, RiskScore: 70, IsNew: true},
		{Mint: "mint2", Name: "Token Two", Symbol: "TWO", DexID: "pump.fun", PriceUSD: 0.002, Liquidity: 800},
	}

	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Snapshot(ctx, records, ts))
	require.NoError(t, store.Snapshot(ctx, records, ts.Add(time.Minute)))

	count, err := store.CountByMint(ctx, "mint1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}
