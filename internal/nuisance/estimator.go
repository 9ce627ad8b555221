package nuisance

import (
	"fmt"
	"math"

	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal"
	"rctmle/ports"
)

// Predictions holds out-of-fold nuisance predictions for a set of
// observations, under the observed arm and both forced arm values.
// Slices are positional: entry j belongs to observation Index[j].
type Predictions struct {
	Index      []int     // original observation indices
	Propensity []float64 // P(A=1 | X)

	// EventHaz[a][j][t-1] is the event hazard at time t under forced arm a.
	EventHaz [2][][]float64

	// CensHaz is analogous for the censoring hazard; nil when the outcome
	// family has no censoring mechanism (ordinal).
	CensHaz [2][][]float64

	K int
}

// Estimator fits the three nuisance components per fold: treatment
// propensity, pooled discrete-time event hazard and (survival only)
// pooled censoring hazard. Ordinal outcomes reuse the event-hazard fit as
// the sequential-level decomposition of P(Y <= level | A, X).
type Estimator struct {
	outcome    ports.Learner
	propensity ports.Learner
	data       *trial.DesignData
	risk       trial.RiskSequence
	dropCov    bool
	logger     *internal.Logger
}

// CollapseCovariates reports whether the design is too low-dimensional for
// covariate adjustment; adjusting on a single column would overfit with no
// efficiency gain. Below the threshold the estimator drops covariates from
// its features, and callers should hand in the arm-only frequency family
// and an intercept-only propensity.
func CollapseCovariates(data *trial.DesignData) bool {
	return data.NumCovariates() < 2
}

// NewEstimator wires an estimator for one dataset with the learners the
// caller selected for its dimension.
func NewEstimator(data *trial.DesignData, outcome, propensity ports.Learner, logger *internal.Logger) *Estimator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	dropCov := CollapseCovariates(data)
	if dropCov {
		logger.Debug("nuisance: covariate dimension < 2, covariates dropped from hazard features")
	}
	return &Estimator{
		outcome:    outcome,
		propensity: propensity,
		data:       data,
		risk:       data.RiskSequence(),
		dropCov:    dropCov,
		logger:     logger,
	}
}

// Fit holds the fitted nuisance models of one fold.
type Fit struct {
	est   *Estimator
	prop  ports.Model
	event ports.Model
	cens  ports.Model // nil when censoring is structurally absent
}

// FitFold trains all nuisance components on the given training indices.
// An empty fold, a single-class propensity response or a learner failure
// aborts the whole estimation.
func (e *Estimator) FitFold(fold int, train []int) (*Fit, error) {
	if len(train) == 0 {
		return nil, core.ErrEmptyFold
	}

	arms0, arms1 := 0, 0
	for _, i := range train {
		if e.data.Arm(i) == 1 {
			arms1++
		} else {
			arms0++
		}
	}
	if arms0 == 0 || arms1 == 0 {
		return nil, fmt.Errorf("%w: propensity (fold %d)", core.ErrSingleClass, fold)
	}

	propX := make([][]float64, len(train))
	propY := make([]float64, len(train))
	for j, i := range train {
		propX[j] = e.data.Covariates(i)
		propY[j] = float64(e.data.Arm(i))
	}
	prop, err := e.propensity.Fit(propX, propY, nil)
	if err != nil {
		return nil, core.NewNuisanceFitError("propensity", fold, err)
	}

	eventX, eventY := expandRiskRows(e.data, e.risk, train, true, e.dropCov)
	if len(eventX) == 0 {
		return nil, fmt.Errorf("%w: no person-time rows at risk (fold %d)", core.ErrNuisanceFit, fold)
	}
	event, err := e.outcome.Fit(eventX, eventY, nil)
	if err != nil {
		return nil, core.NewNuisanceFitError("event hazard", fold, err)
	}

	var cens ports.Model
	if e.risk.Censored {
		censX, censY := expandRiskRows(e.data, e.risk, train, false, e.dropCov)
		cens, err = e.outcome.Fit(censX, censY, nil)
		if err != nil {
			return nil, core.NewNuisanceFitError("censoring hazard", fold, err)
		}
	}

	e.logger.Debug("nuisance: fold %d fit on %d observations (%d person-time rows)", fold, len(train), len(eventX))
	return &Fit{est: e, prop: prop, event: event, cens: cens}, nil
}

// Predict scores the held-out observations: propensity on X, and event and
// censoring hazards at every time point under both forced arm values.
func (f *Fit) Predict(idx []int) (*Predictions, error) {
	e := f.est
	k := e.data.Grid().K()

	propX := make([][]float64, len(idx))
	for j, i := range idx {
		propX[j] = e.data.Covariates(i)
	}
	prop, err := f.prop.Predict(propX)
	if err != nil {
		return nil, core.NewNuisanceFitError("propensity predict", -1, err)
	}
	if err := checkProbabilities(prop); err != nil {
		return nil, err
	}

	out := &Predictions{Index: idx, Propensity: prop, K: k}
	for a := 0; a < 2; a++ {
		rows := counterfactualRows(e.data, idx, a, e.dropCov)

		flat, err := f.event.Predict(rows)
		if err != nil {
			return nil, core.NewNuisanceFitError("event hazard predict", -1, err)
		}
		if err := checkProbabilities(flat); err != nil {
			return nil, err
		}
		out.EventHaz[a] = unflatten(flat, len(idx), k)

		if f.cens != nil {
			flat, err = f.cens.Predict(rows)
			if err != nil {
				return nil, core.NewNuisanceFitError("censoring hazard predict", -1, err)
			}
			if err := checkProbabilities(flat); err != nil {
				return nil, err
			}
			out.CensHaz[a] = unflatten(flat, len(idx), k)
		}
	}
	return out, nil
}

func unflatten(flat []float64, n, k int) [][]float64 {
	out := make([][]float64, n)
	for j := 0; j < n; j++ {
		out[j] = flat[j*k : (j+1)*k]
	}
	return out
}

func checkProbabilities(p []float64) error {
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %v", core.ErrInvalidProbability, v)
		}
	}
	return nil
}
