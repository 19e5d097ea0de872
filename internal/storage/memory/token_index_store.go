package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// TokenIndexStore is an in-memory implementation of storage.TokenIndexStore.
type TokenIndexStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.TokenRecord
}

// NewTokenIndexStore creates a new in-memory token index store.
func NewTokenIndexStore() *TokenIndexStore {
	return &TokenIndexStore{
		byMint: make(map[string]*domain.TokenRecord),
	}
}

// Upsert inserts or replaces the record for its mint.
func (s *TokenIndexStore) Upsert(_ context.Context, r *domain.TokenRecord) error {
	if r == nil || r.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *r
	s.byMint[r.Mint] = &recCopy
	return nil
}

// GetByMint retrieves a record by mint. Returns ErrNotFound if not exists.
func (s *TokenIndexStore) GetByMint(_ context.Context, mint string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *r
	return &recCopy, nil
}

// ListRecent retrieves up to limit records ordered by creation time DESC.
func (s *TokenIndexStore) ListRecent(_ context.Context, limit int) ([]*domain.TokenRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.TokenRecord, 0, len(s.byMint))
	for _, r := range s.byMint {
		recCopy := *r
		records = append(records, &recCopy)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ListGraduated retrieves all records trading on a liquidity-pool venue.
func (s *TokenIndexStore) ListGraduated(_ context.Context) ([]*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.TokenRecord
	for _, r := range s.byMint {
		if !r.Graduated() {
			continue
		}
		recCopy := *r
		records = append(records, &recCopy)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

var _ storage.TokenIndexStore = (*TokenIndexStore)(nil)
