package learner

import (
	"fmt"
	"strings"

	"rctmle/ports"
)

// StratifiedLearner estimates probabilities as empirical event fractions
// within strata defined by the exact feature tuple. It is a saturated,
// assumption-free fit for low-cardinality designs (discrete covariates,
// time dummies); unseen strata fall back to the marginal mean.
type StratifiedLearner struct{}

// NewStratifiedLearner creates a stratified-frequency learner.
func NewStratifiedLearner() *StratifiedLearner { return &StratifiedLearner{} }

// Name returns the learner name.
func (l *StratifiedLearner) Name() string { return "stratified_frequency" }

// Parametric reports false: the saturated fit grows with the data and
// must be cross-fitted.
func (l *StratifiedLearner) Parametric() bool { return false }

// Fit accumulates weighted event fractions per stratum.
func (l *StratifiedLearner) Fit(X [][]float64, y []float64, weights []float64) (ports.Model, error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, fmt.Errorf("stratified_frequency: need matching non-empty X and y")
	}
	if weights == nil {
		weights = uniformWeights(n)
	}

	type cell struct{ sumW, sumWY float64 }
	cells := make(map[string]*cell)
	totW, totWY := 0.0, 0.0

	for i := 0; i < n; i++ {
		w := weights[i]
		if w <= 0 {
			continue
		}
		k := strataKey(X[i])
		c := cells[k]
		if c == nil {
			c = &cell{}
			cells[k] = c
		}
		c.sumW += w
		c.sumWY += w * y[i]
		totW += w
		totWY += w * y[i]
	}
	if totW == 0 {
		return nil, fmt.Errorf("stratified_frequency: all weights are zero")
	}

	means := make(map[string]float64, len(cells))
	for k, c := range cells {
		means[k] = c.sumWY / c.sumW
	}
	return &stratifiedModel{means: means, fallback: totWY / totW}, nil
}

type stratifiedModel struct {
	means    map[string]float64
	fallback float64
}

// Predict returns the stratum mean per row, or the marginal mean for
// strata never seen in training.
func (m *stratifiedModel) Predict(Xnew [][]float64) ([]float64, error) {
	out := make([]float64, len(Xnew))
	for i, x := range Xnew {
		if p, ok := m.means[strataKey(x)]; ok {
			out[i] = p
		} else {
			out[i] = m.fallback
		}
	}
	return out, nil
}

func strataKey(x []float64) string {
	var sb strings.Builder
	for _, v := range x {
		fmt.Fprintf(&sb, "%.9g|", v)
	}
	return sb.String()
}
