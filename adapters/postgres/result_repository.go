package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rctmle/domain/trial"
	"rctmle/ports"
)

// ResultRepositoryImpl implements ResultRepository for PostgreSQL.
// Estimates and the EIF matrix are stored as JSONB alongside scalar
// summary columns so analyses can be queried without decoding.
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

// NewResultRepository creates a new PostgreSQL result repository.
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

// Schema is the table definition the repository expects.
const Schema = `
CREATE TABLE IF NOT EXISTS estimator_results (
	id          UUID PRIMARY KEY,
	estimand    TEXT NOT NULL,
	estimates   JSONB NOT NULL,
	eif         JSONB,
	n           INTEGER NOT NULL,
	folds       INTEGER NOT NULL,
	seed        BIGINT NOT NULL,
	level       DOUBLE PRECISION NOT NULL,
	epsilon     DOUBLE PRECISION NOT NULL,
	converged   BOOLEAN NOT NULL,
	iterations  INTEGER NOT NULL,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);`

// Migrate creates the results table when it does not exist.
func (r *ResultRepositoryImpl) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// Save upserts an estimator result.
func (r *ResultRepositoryImpl) Save(ctx context.Context, result *trial.EstimatorResult) error {
	estimatesJSON, err := json.Marshal(result.Estimates)
	if err != nil {
		return fmt.Errorf("marshal estimates: %w", err)
	}
	eifJSON, err := json.Marshal(result.EIF)
	if err != nil {
		return fmt.Errorf("marshal eif: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO estimator_results (
			id, estimand, estimates, eif, n, folds, seed,
			level, epsilon, converged, iterations, score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			estimand   = EXCLUDED.estimand,
			estimates  = EXCLUDED.estimates,
			eif        = EXCLUDED.eif,
			n          = EXCLUDED.n,
			folds      = EXCLUDED.folds,
			seed       = EXCLUDED.seed,
			level      = EXCLUDED.level,
			epsilon    = EXCLUDED.epsilon,
			converged  = EXCLUDED.converged,
			iterations = EXCLUDED.iterations,
			score      = EXCLUDED.score`,
		result.ID, result.Estimand, estimatesJSON, eifJSON, result.N, result.Folds,
		result.Seed, result.Level, result.Epsilon, result.Converged, result.Iterations,
		result.Score, result.CreatedAt)
	return err
}

// Get retrieves a result by ID.
func (r *ResultRepositoryImpl) Get(ctx context.Context, id uuid.UUID) (*trial.EstimatorResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, estimand, estimates, eif, n, folds, seed,
		       level, epsilon, converged, iterations, score, created_at
		FROM estimator_results
		WHERE id = $1`, id)
	return scanResult(row)
}

// List returns the most recent results, newest first.
func (r *ResultRepositoryImpl) List(ctx context.Context, limit int) ([]*trial.EstimatorResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, estimand, estimates, eif, n, folds, seed,
		       level, epsilon, converged, iterations, score, created_at
		FROM estimator_results
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*trial.EstimatorResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scannable) (*trial.EstimatorResult, error) {
	var result trial.EstimatorResult
	var estimatesJSON, eifJSON []byte

	err := row.Scan(
		&result.ID, &result.Estimand, &estimatesJSON, &eifJSON, &result.N,
		&result.Folds, &result.Seed, &result.Level, &result.Epsilon,
		&result.Converged, &result.Iterations, &result.Score, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("estimator result not found")
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(estimatesJSON, &result.Estimates); err != nil {
		return nil, fmt.Errorf("unmarshal estimates: %w", err)
	}
	if len(eifJSON) > 0 {
		if err := json.Unmarshal(eifJSON, &result.EIF); err != nil {
			return nil, fmt.Errorf("unmarshal eif: %w", err)
		}
	}
	return &result, nil
}
