package store

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/quote-engine/internal/model"
)

// Schema creates the tables PostgresStore reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	product    TEXT PRIMARY KEY,
	fair_value NUMERIC NOT NULL,
	history    JSONB NOT NULL DEFAULT '[]',
	tick       BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id                  UUID PRIMARY KEY,
	tick                BIGINT NOT NULL,
	product             TEXT NOT NULL,
	mode                TEXT NOT NULL,
	mid                 NUMERIC NOT NULL,
	fair_value          NUMERIC NOT NULL,
	adjusted_fair_value NUMERIC NOT NULL,
	threshold           NUMERIC NOT NULL,
	position            INTEGER NOT NULL,
	orders              JSONB NOT NULL DEFAULT '[]',
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS decisions_product_created_idx ON decisions (product, created_at DESC);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Prices are stored as NUMERIC; history and orders as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	history, err := json.Marshal(nonNilHistory(cp.History))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (product, fair_value, history, tick, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::JSONB, $4, $5)
		 ON CONFLICT (product) DO UPDATE
		 SET fair_value = EXCLUDED.fair_value, history = EXCLUDED.history,
		     tick = EXCLUDED.tick, updated_at = EXCLUDED.updated_at`,
		string(cp.Product), cp.FairValue.String(), string(history), cp.Tick, cp.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, product model.Product) (*model.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT product, fair_value::TEXT, history::TEXT, tick, updated_at
		 FROM checkpoints WHERE product = $1`, string(product))

	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", product, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", product, err)
	}
	return &cp, nil
}

func (s *PostgresStore) LoadCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product, fair_value::TEXT, history::TEXT, tick, updated_at
		 FROM checkpoints ORDER BY product`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertDecision(ctx context.Context, r *model.DecisionRecord) error {
	orders, err := json.Marshal(nonNilOrders(r.Orders))
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, tick, product, mode, mid, fair_value, adjusted_fair_value, threshold, position, orders, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10::JSONB, $11)`,
		r.ID, r.Tick, string(r.Product), r.Mode,
		r.Mid.String(), r.FairValue.String(), r.AdjustedFairValue.String(), r.Threshold.String(),
		r.Position, string(orders), r.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetDecisionsByProduct(ctx context.Context, product model.Product, limit int) ([]model.DecisionRecord, error) {
	query := `SELECT id::TEXT, tick, product, mode,
	                 mid::TEXT, fair_value::TEXT, adjusted_fair_value::TEXT, threshold::TEXT,
	                 position, orders::TEXT, created_at
	          FROM decisions WHERE product = $1 ORDER BY created_at DESC, tick DESC`
	args := []any{string(product)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (model.Checkpoint, error) {
	var cp model.Checkpoint
	var product, fairValue, history string
	if err := row.Scan(&product, &fairValue, &history, &cp.Tick, &cp.UpdatedAt); err != nil {
		return model.Checkpoint{}, err
	}
	cp.Product = model.Product(product)
	cp.FairValue, _ = decimal.NewFromString(fairValue)
	if err := json.Unmarshal([]byte(history), &cp.History); err != nil {
		return model.Checkpoint{}, fmt.Errorf("decode history of %s: %w", product, err)
	}
	return cp, nil
}

// pgxRows reads pgx rows into DecisionRecord slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDecisions(rows pgxRows) ([]model.DecisionRecord, error) {
	var records []model.DecisionRecord
	for rows.Next() {
		var r model.DecisionRecord
		var product, mid, fair, adjusted, threshold, orders string

		if err := rows.Scan(&r.ID, &r.Tick, &product, &r.Mode,
			&mid, &fair, &adjusted, &threshold,
			&r.Position, &orders, &r.CreatedAt); err != nil {
			return nil, err
		}

		r.Product = model.Product(product)
		r.Mid, _ = decimal.NewFromString(mid)
		r.FairValue, _ = decimal.NewFromString(fair)
		r.AdjustedFairValue, _ = decimal.NewFromString(adjusted)
		r.Threshold, _ = decimal.NewFromString(threshold)
		if err := json.Unmarshal([]byte(orders), &r.Orders); err != nil {
			return nil, fmt.Errorf("decode orders of %s: %w", r.ID, err)
		}

		records = append(records, r)
	}
	return records, rows.Err()
}

func nonNilHistory(h []model.PricePoint) []model.PricePoint {
	if h == nil {
		return []model.PricePoint{}
	}
	return h
}

func nonNilOrders(o []model.Order) []model.Order {
	if o == nil {
		return []model.Order{}
	}
	return o
}
