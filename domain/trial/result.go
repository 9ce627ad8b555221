package trial

import (
	"time"

	"github.com/google/uuid"
)

// EstimandType identifies which treatment-effect summary a result reports.
type EstimandType string

const (
	EstimandRMST        EstimandType = "rmst"
	EstimandSurvProb    EstimandType = "survival_probability"
	EstimandLogOdds     EstimandType = "log_odds_ratio"
	EstimandMannWhitney EstimandType = "mann_whitney"
	EstimandCDF         EstimandType = "cdf"
	EstimandPMF         EstimandType = "pmf"
)

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Estimate is one reported quantity: a scalar for the summary estimands,
// one entry per horizon/level otherwise. Arm is 0 or 1 for per-arm curves
// (CDF/PMF) and -1 for between-arm contrasts.
type Estimate struct {
	Index  float64  `json:"index"` // time horizon value or outcome level
	Arm    int      `json:"arm"`
	Point  float64  `json:"point"`
	StdErr float64  `json:"std_err"`
	CI     Interval `json:"ci"`
}

// EstimatorResult is the immutable output of one estimand computation:
// point estimates, influence-function matrix, standard errors and
// confidence intervals, plus the reproducibility contract of the run.
type EstimatorResult struct {
	ID        uuid.UUID    `json:"id"`
	Estimand  EstimandType `json:"estimand"`
	Estimates []Estimate   `json:"estimates"`

	// EIF holds one row per observation (original order) and one column
	// per entry of Estimates; column means are ~0 after targeting.
	EIF [][]float64 `json:"eif,omitempty"`

	N          int     `json:"n"`
	Folds      int     `json:"folds"`
	Seed       int64   `json:"seed"`
	Level      float64 `json:"level"`   // confidence level, e.g. 0.95
	Epsilon    float64 `json:"epsilon"` // probability clipping bound used
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`

	// Score is the worst per-fold residual of the efficient score equation
	// at the targeted estimates, a diagnostic for the targeting step.
	Score float64 `json:"score"`

	CreatedAt time.Time `json:"created_at"`
}

// PointAt returns the point estimate whose index equals idx for the given
// arm, or false when no such entry exists.
func (r *EstimatorResult) PointAt(idx float64, arm int) (float64, bool) {
	for _, e := range r.Estimates {
		if e.Index == idx && e.Arm == arm {
			return e.Point, true
		}
	}
	return 0, false
}
