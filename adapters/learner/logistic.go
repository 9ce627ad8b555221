package learner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"rctmle/ports"
)

// LogisticLearner fits a ridge-stabilized logistic regression by
// iteratively reweighted least squares. It is the default parametric
// learner for hazards and propensity.
type LogisticLearner struct {
	Ridge   float64 // L2 penalty on non-intercept coefficients
	MaxIter int
	Tol     float64
}

// NewLogisticLearner creates a logistic learner with default stabilization.
func NewLogisticLearner() *LogisticLearner {
	return &LogisticLearner{Ridge: 1e-4, MaxIter: 50, Tol: 1e-9}
}

// Name returns the learner name.
func (l *LogisticLearner) Name() string { return "logistic" }

// Parametric reports that logistic regression is a low-complexity family.
func (l *LogisticLearner) Parametric() bool { return true }

// Fit estimates coefficients by IRLS on the weighted log-likelihood.
// A degenerate response (all zeros or all ones) collapses to a constant
// model instead of diverging.
func (l *LogisticLearner) Fit(X [][]float64, y []float64, weights []float64) (ports.Model, error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, fmt.Errorf("logistic: need matching non-empty X and y, got %d x %d", len(X), n)
	}
	if weights == nil {
		weights = uniformWeights(n)
	} else if len(weights) != n {
		return nil, fmt.Errorf("logistic: weights length %d != n %d", len(weights), n)
	}

	if p, degenerate := degenerateResponse(y, weights); degenerate {
		return ConstantModel{P: p}, nil
	}

	p := 0
	if len(X[0]) > 0 {
		p = len(X[0])
	}
	d := p + 1 // intercept first

	beta := make([]float64, d)
	eta := make([]float64, n)

	a := mat.NewSymDense(d, nil)
	b := mat.NewVecDense(d, nil)
	sol := mat.NewVecDense(d, nil)
	row := make([]float64, d)

	for iter := 0; iter < l.MaxIter; iter++ {
		a.Zero()
		b.Zero()

		for i := 0; i < n; i++ {
			row[0] = 1
			copy(row[1:], X[i])

			eta[i] = dot(row, beta)
			mu := sigmoid(eta[i])
			v := mu * (1 - mu)
			if v < 1e-10 {
				v = 1e-10
			}
			w := weights[i] * v
			z := eta[i] + (y[i]-mu)/v

			for j := 0; j < d; j++ {
				for k := j; k < d; k++ {
					a.SetSym(j, k, a.At(j, k)+w*row[j]*row[k])
				}
				b.SetVec(j, b.AtVec(j)+w*z*row[j])
			}
		}

		// Ridge on slopes only keeps the intercept free to match the mean.
		for j := 1; j < d; j++ {
			a.SetSym(j, j, a.At(j, j)+l.Ridge)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			return nil, fmt.Errorf("logistic: normal equations not positive definite at iteration %d", iter)
		}
		if err := chol.SolveVecTo(sol, b); err != nil {
			return nil, fmt.Errorf("logistic: solve failed: %w", err)
		}

		delta := 0.0
		for j := 0; j < d; j++ {
			delta = math.Max(delta, math.Abs(sol.AtVec(j)-beta[j]))
			beta[j] = sol.AtVec(j)
		}
		if delta < l.Tol {
			break
		}
	}

	return &logisticModel{beta: beta}, nil
}

type logisticModel struct {
	beta []float64 // intercept first
}

// Predict returns sigmoid(beta0 + x.beta) per row.
func (m *logisticModel) Predict(Xnew [][]float64) ([]float64, error) {
	out := make([]float64, len(Xnew))
	for i, x := range Xnew {
		if len(x) != len(m.beta)-1 {
			return nil, fmt.Errorf("logistic: row %d has %d features, model expects %d", i, len(x), len(m.beta)-1)
		}
		eta := m.beta[0]
		for j, v := range x {
			eta += m.beta[j+1] * v
		}
		out[i] = sigmoid(eta)
	}
	return out, nil
}

// ConstantModel predicts a single probability regardless of covariates.
type ConstantModel struct {
	P float64
}

// Predict returns the constant probability per row.
func (m ConstantModel) Predict(Xnew [][]float64) ([]float64, error) {
	out := make([]float64, len(Xnew))
	for i := range out {
		out[i] = m.P
	}
	return out, nil
}

// degenerateResponse detects an all-0 or all-1 weighted response and
// returns the probability the constant fallback should carry.
func degenerateResponse(y, weights []float64) (float64, bool) {
	sumW, sumWY := 0.0, 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		sumW += w
		sumWY += w * y[i]
	}
	if sumW == 0 {
		return 0.5, true
	}
	mean := sumWY / sumW
	if mean <= 0 || mean >= 1 {
		// Anchor a touch inside (0,1); downstream clipping applies anyway.
		return math.Min(math.Max(mean, 1e-8), 1-1e-8), true
	}
	return 0, false
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
