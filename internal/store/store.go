// Package store defines the persistence interface for the quote engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache of checkpoints), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/quote-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The engine never calls it; the host
// service checkpoints after every tick and restores on start.
type Store interface {
	// --- Estimator checkpoints ---

	// SaveCheckpoint upserts the latest state of one product.
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error

	// GetCheckpoint returns the checkpoint of one product.
	GetCheckpoint(ctx context.Context, product model.Product) (*model.Checkpoint, error)

	// LoadCheckpoints returns every stored checkpoint.
	LoadCheckpoints(ctx context.Context) ([]model.Checkpoint, error)

	// --- Decision journal ---

	// InsertDecision appends an immutable decision record.
	InsertDecision(ctx context.Context, rec *model.DecisionRecord) error

	// GetDecisionsByProduct returns the newest decisions of a product,
	// newest first. limit <= 0 returns all of them.
	GetDecisionsByProduct(ctx context.Context, product model.Product, limit int) ([]model.DecisionRecord, error)
}
