package eif

import (
	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal/nuisance"
)

// DefaultEpsilon is the probability clipping bound applied to hazards and
// propensities before any division. It is part of the estimator's
// reproducibility contract and is reported on every result.
const DefaultEpsilon = 1e-6

// Output carries one fold's counterfactual plug-in curves and efficient
// influence function trajectories. Entry j of every positional slice
// belongs to observation Index[j].
type Output struct {
	Index []int
	K     int

	// Survival[a][t-1] is the fold plug-in estimate of S_a(t): the mean
	// over observations of the conditional product-limit curve.
	Survival [2][]float64

	// CondSurv[a][j][t-1] is S_a(t | X_j) = prod_{s<=t} (1 - hazard).
	CondSurv [2][][]float64

	// CensBefore[a][j][t-1] is the censoring survival G_a(t-1 | X_j),
	// evaluated just before t; identically 1 without a censoring mechanism.
	CensBefore [2][][]float64

	// EIF[a][j][t-1] is the influence contribution for S_a(t), centered
	// at the fold plug-in.
	EIF [2][][]float64

	// Clipped nuisance values retained for the targeting step.
	EventHaz   [2][][]float64
	Propensity []float64

	// Observed risk view of the fold, retained for the targeting step.
	Time  []int
	Event []int
	Arm   []int
}

// Engine builds plug-in curves and EIF trajectories from out-of-fold
// nuisance predictions.
type Engine struct {
	eps float64
}

// NewEngine creates an engine with the given clipping epsilon; a
// non-positive value selects DefaultEpsilon.
func NewEngine(eps float64) *Engine {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &Engine{eps: eps}
}

// Epsilon returns the clipping bound in force.
func (en *Engine) Epsilon() float64 { return en.eps }

// Build computes, for each arm, the conditional and marginal counterfactual
// survival curves and the per-observation, per-time EIF contributions.
// A fold whose propensities sit entirely at the clipping boundary signals
// near-deterministic treatment and aborts with a numeric instability error;
// an event or censoring hazard pinned at the upper boundary for the whole
// fold aborts likewise, since it collapses the survival denominators. The
// lower boundary stays legal: an event-free or censoring-free fold is a
// valid trial.
func (en *Engine) Build(data *trial.DesignData, risk trial.RiskSequence, preds *nuisance.Predictions) (*Output, error) {
	n := len(preds.Index)
	k := preds.K

	out := &Output{
		Index:      preds.Index,
		K:          k,
		Propensity: make([]float64, n),
		Time:       make([]int, n),
		Event:      make([]int, n),
		Arm:        make([]int, n),
	}

	clippedAll := true
	for j, i := range preds.Index {
		p, wasClipped := en.clip(preds.Propensity[j])
		out.Propensity[j] = p
		if !wasClipped {
			clippedAll = false
		}
		out.Time[j] = risk.Time[i]
		out.Event[j] = risk.Event[i]
		out.Arm[j] = data.Arm(i)
	}
	if clippedAll {
		return nil, core.ErrDegeneratePropensity
	}

	for a := 0; a < 2; a++ {
		haz := make([][]float64, n)
		cond := make([][]float64, n)
		censBefore := make([][]float64, n)

		eventHigh := true
		censHigh := preds.CensHaz[a] != nil
		for j := 0; j < n; j++ {
			haz[j] = make([]float64, k)
			cond[j] = make([]float64, k)
			censBefore[j] = make([]float64, k)

			surv := 1.0
			cens := 1.0
			for t := 0; t < k; t++ {
				h, _ := en.clip(preds.EventHaz[a][j][t])
				if h < 1-en.eps {
					eventHigh = false
				}
				haz[j][t] = h
				surv *= 1 - h
				cond[j][t] = surv

				censBefore[j][t] = cens // G just before t+1
				if preds.CensHaz[a] != nil {
					g, _ := en.clip(preds.CensHaz[a][j][t])
					if g < 1-en.eps {
						censHigh = false
					}
					cens *= 1 - g
				}
			}
		}
		if eventHigh || censHigh {
			return nil, core.ErrDegenerateHazard
		}

		out.EventHaz[a] = haz
		out.CondSurv[a] = cond
		out.CensBefore[a] = censBefore
		out.Survival[a] = columnMeans(cond, k)
		out.EIF[a] = en.influence(out, a)
	}
	return out, nil
}

// Rebuild recomputes arm a's conditional curves, marginal plug-in and EIF
// from the (possibly fluctuated) hazards in out.EventHaz[a]. The targeting
// step mutates hazards and calls this after every fluctuation update.
func (en *Engine) Rebuild(out *Output, a int) {
	n := len(out.Index)
	for j := 0; j < n; j++ {
		surv := 1.0
		for t := 0; t < out.K; t++ {
			surv *= 1 - out.EventHaz[a][j][t]
			out.CondSurv[a][j][t] = surv
		}
	}
	out.Survival[a] = columnMeans(out.CondSurv[a], out.K)
	out.EIF[a] = en.influence(out, a)
}

// influence evaluates the EIF trajectory for arm a: an inverse-probability-
// of-treatment weight, an inverse-probability-of-censoring weight and the
// summed martingale residual scaled by the survival ratio S_a(t)/S_a(s),
// plus the centered conditional curve.
func (en *Engine) influence(out *Output, a int) [][]float64 {
	n := len(out.Index)
	k := out.K
	eifs := make([][]float64, n)

	for j := 0; j < n; j++ {
		eifs[j] = make([]float64, k)

		pa := out.Propensity[j]
		if a == 0 {
			pa = 1 - pa
		}
		ipw := 0.0
		if out.Arm[j] == a {
			ipw = 1 / pa
		}

		for t := 1; t <= k; t++ {
			mart := 0.0
			if ipw != 0 {
				st := out.CondSurv[a][j][t-1]
				for s := 1; s <= t && s <= out.Time[j]; s++ {
					ss := out.CondSurv[a][j][s-1]
					if ss < en.eps {
						ss = en.eps
					}
					g := out.CensBefore[a][j][s-1]
					if g < en.eps {
						g = en.eps
					}
					dN := 0.0
					if out.Time[j] == s && out.Event[j] == 1 {
						dN = 1
					}
					mart += st / ss / g * (dN - out.EventHaz[a][j][s-1])
				}
			}
			eifs[j][t-1] = -ipw*mart + out.CondSurv[a][j][t-1] - out.Survival[a][t-1]
		}
	}
	return eifs
}

// clip bounds a probability away from exactly 0 and 1, reporting whether
// clipping was applied.
func (en *Engine) clip(p float64) (float64, bool) {
	if p < en.eps {
		return en.eps, true
	}
	if p > 1-en.eps {
		return 1 - en.eps, true
	}
	return p, false
}

func columnMeans(rows [][]float64, k int) []float64 {
	means := make([]float64, k)
	if len(rows) == 0 {
		return means
	}
	for _, row := range rows {
		for t := 0; t < k; t++ {
			means[t] += row[t]
		}
	}
	for t := 0; t < k; t++ {
		means[t] /= float64(len(rows))
	}
	return means
}
