package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

func TestTokenIndexStore_UpsertAndGet(t *testing.T) {
	store := NewTokenIndexStore()
	ctx := context.Background()

	rec := &domain.TokenRecord{
		Mint:      "mint1",
		Name:      "Test Token",
		Symbol:    "TEST",
		Source:    domain.SourcePumpFun,
		CreatedAt: time.Now(),
		PriceUSD:  0.001,
	}

	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.Symbol != "TEST" {
		t.Errorf("Expected symbol TEST, got %s", got.Symbol)
	}

	// Second upsert replaces.
	rec.Symbol = "TEST2"
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	got, err = store.GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint after second upsert failed: %v", err)
	}
	if got.Symbol != "TEST2" {
		t.Errorf("Expected symbol TEST2, got %s", got.Symbol)
	}
}

func TestTokenIndexStore_GetNotFound(t *testing.T) {
	store := NewTokenIndexStore()

	_, err := store.GetByMint(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTokenIndexStore_InvalidInput(t *testing.T) {
	store := NewTokenIndexStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil record, got %v", err)
	}
	if err := store.Upsert(ctx, &domain.TokenRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty mint, got %v", err)
	}
}

func TestTokenIndexStore_Copysemantics(t *testing.T) {
	store := NewTokenIndexStore()
	ctx := context.Background()

	rec := &domain.TokenRecord{Mint: "mint1", Symbol: "A"}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the caller's struct must not affect the stored copy.
	rec.Symbol = "B"

	got, err := store.GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.Symbol != "A" {
		t.Errorf("Stored record mutated through caller reference: got %s", got.Symbol)
	}

	// Mutating a returned copy must not affect the store either.
	got.Symbol = "C"
	again, _ := store.GetByMint(ctx, "mint1")
	if again.Symbol != "A" {
		t.Errorf("Stored record mutated through returned copy: got %s", again.Symbol)
	}
}

func TestTokenIndexStore_ListRecent(t *testing.T) {
	store := NewTokenIndexStore()
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, mint := range []string{"m1", "m2", "m3"} {
		rec := &domain.TokenRecord{Mint: mint, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert %s failed: %v", mint, err)
		}
	}

	records, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Mint != "m3" || records[1].Mint != "m2" {
		t.Errorf("Expected [m3 m2], got [%s %s]", records[0].Mint, records[1].Mint)
	}

	if _, err := store.ListRecent(ctx, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for limit 0, got %v", err)
	}
}

func TestTokenIndexStore_ListGraduated(t *testing.T) {
	store := NewTokenIndexStore()
	ctx := context.Background()

	records := []*domain.TokenRecord{
		{Mint: "bonding", DexID: "pump.fun"},
		{Mint: "pool", DexID: "raydium"},
		{Mint: "unknown"},
	}
	for _, r := range records {
		if err := store.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert %s failed: %v", r.Mint, err)
		}
	}

	graduated, err := store.ListGraduated(ctx)
	if err != nil {
		t.Fatalf("ListGraduated failed: %v", err)
	}
	if len(graduated) != 1 {
		t.Fatalf("Expected 1 graduated record, got %d", len(graduated))
	}
	if graduated[0].Mint != "pool" {
		t.Errorf("Expected mint pool, got %s", graduated[0].Mint)
	}
}
