package store

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/quote-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache of checkpoints. Checkpoint writes go to the primary store and then
// refresh the cache; the decision journal is passed through untouched.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	if err := s.primary.SaveCheckpoint(ctx, cp); err != nil {
		return err
	}
	s.cacheCheckpoint(ctx, cp)
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetCheckpoint(ctx context.Context, product model.Product) (*model.Checkpoint, error) {
	data, err := s.rdb.Get(ctx, checkpointKey(product)).Bytes()
	if err == nil {
		var cp model.Checkpoint
		if json.Unmarshal(data, &cp) == nil {
			return &cp, nil
		}
	}

	cp, err := s.primary.GetCheckpoint(ctx, product)
	if err != nil {
		return nil, err
	}
	s.cacheCheckpoint(ctx, cp)
	return cp, nil
}

// --- Passthrough (not cached) ---

// LoadCheckpoints always reads the primary; it runs once per process start.
func (s *CachedStore) LoadCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	return s.primary.LoadCheckpoints(ctx)
}

func (s *CachedStore) InsertDecision(ctx context.Context, rec *model.DecisionRecord) error {
	return s.primary.InsertDecision(ctx, rec)
}

func (s *CachedStore) GetDecisionsByProduct(ctx context.Context, product model.Product, limit int) ([]model.DecisionRecord, error) {
	return s.primary.GetDecisionsByProduct(ctx, product, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheCheckpoint(ctx context.Context, cp *model.Checkpoint) {
	if data, err := json.Marshal(cp); err == nil {
		s.rdb.Set(ctx, checkpointKey(cp.Product), data, s.ttl)
	}
}

func checkpointKey(product model.Product) string { return fmt.Sprintf("checkpoint:%s", product) }
