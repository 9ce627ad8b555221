package ports

// Model is a fitted regression/classification model. Predict returns one
// probability per row of Xnew, each in [0,1].
type Model interface {
	Predict(Xnew [][]float64) ([]float64, error)
}

// Learner wraps a pluggable binary-probability model-fitting algorithm.
// Fit is parameterized purely by its input arrays and returns an
// independent model value; implementations hold no shared mutable state.
// weights may be nil for unweighted fits.
type Learner interface {
	Name() string

	// Parametric reports whether the learner is a simple low-complexity
	// parametric family. Only parametric learners may be used without
	// cross-fitting (V == 1).
	Parametric() bool

	Fit(X [][]float64, y []float64, weights []float64) (Model, error)
}
