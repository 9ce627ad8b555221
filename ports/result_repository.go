package ports

import (
	"context"

	"github.com/google/uuid"

	"rctmle/domain/trial"
)

// ResultRepository persists estimator results so analyses can be re-read
// by ID after the estimation call returns.
type ResultRepository interface {
	Save(ctx context.Context, result *trial.EstimatorResult) error
	Get(ctx context.Context, id uuid.UUID) (*trial.EstimatorResult, error)
	List(ctx context.Context, limit int) ([]*trial.EstimatorResult, error)
}
