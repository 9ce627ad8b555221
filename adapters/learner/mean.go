package learner

import (
	"fmt"

	"rctmle/ports"
)

// MeanLearner fits an intercept-only model: the weighted response mean.
// It is the collapse target when the covariate dimension is too small to
// justify a richer family, and the default propensity model in a
// randomized trial.
type MeanLearner struct{}

// NewMeanLearner creates an intercept-only learner.
func NewMeanLearner() *MeanLearner { return &MeanLearner{} }

// Name returns the learner name.
func (l *MeanLearner) Name() string { return "empirical_mean" }

// Parametric reports that the intercept-only family is parametric.
func (l *MeanLearner) Parametric() bool { return true }

// Fit computes the weighted mean of y.
func (l *MeanLearner) Fit(X [][]float64, y []float64, weights []float64) (ports.Model, error) {
	if len(y) == 0 {
		return nil, fmt.Errorf("empirical_mean: empty response")
	}
	if weights == nil {
		weights = uniformWeights(len(y))
	}
	sumW, sumWY := 0.0, 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		sumW += w
		sumWY += w * y[i]
	}
	if sumW == 0 {
		return nil, fmt.Errorf("empirical_mean: all weights are zero")
	}
	return ConstantModel{P: sumWY / sumW}, nil
}
