package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/quote-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[model.Product]model.Checkpoint
	journal     []model.DecisionRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[model.Product]model.Checkpoint),
	}
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp *model.Checkpoint) error {
	if cp == nil || cp.Product == "" {
		return fmt.Errorf("save checkpoint: product required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.Product] = cloneCheckpoint(*cp)
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, product model.Product) (*model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[product]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", product, ErrNotFound)
	}
	out := cloneCheckpoint(cp)
	return &out, nil
}

func (s *MemoryStore) LoadCheckpoints(_ context.Context) ([]model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		out = append(out, cloneCheckpoint(cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out, nil
}

func (s *MemoryStore) InsertDecision(_ context.Context, rec *model.DecisionRecord) error {
	if rec == nil {
		return fmt.Errorf("insert decision: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *rec
	entry.Orders = append([]model.Order(nil), rec.Orders...)
	s.journal = append(s.journal, entry)
	return nil
}

func (s *MemoryStore) GetDecisionsByProduct(_ context.Context, product model.Product, limit int) ([]model.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.DecisionRecord
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].Product != product {
			continue
		}
		result = append(result, s.journal[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func cloneCheckpoint(cp model.Checkpoint) model.Checkpoint {
	cp.History = append([]model.PricePoint(nil), cp.History...)
	return cp
}
