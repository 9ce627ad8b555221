package inference

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"rctmle/domain/trial"
	"rctmle/internal/target"
)

// Pooled is the cross-fit aggregate of per-fold targeted results: fold
// estimates averaged arithmetically, EIF values concatenated back into
// original observation order (one row per observation).
type Pooled struct {
	N, K       int
	Survival   [2][]float64
	EIF        [2][][]float64
	Converged  bool
	Iterations int
	Score      float64 // worst per-fold targeting score residual
}

// Aggregate combines fold results for a trial of n observations.
func Aggregate(n int, folds []*target.Result) *Pooled {
	k := folds[0].K
	p := &Pooled{N: n, K: k, Converged: true}

	for a := 0; a < 2; a++ {
		p.Survival[a] = make([]float64, k)
		p.EIF[a] = make([][]float64, n)
	}

	for _, f := range folds {
		if !f.Converged {
			p.Converged = false
		}
		if f.Iterations > p.Iterations {
			p.Iterations = f.Iterations
		}
		if f.Score > p.Score {
			p.Score = f.Score
		}
		for a := 0; a < 2; a++ {
			for t := 0; t < k; t++ {
				p.Survival[a][t] += f.Survival[a][t] / float64(len(folds))
			}
			for j, i := range f.Index {
				p.EIF[a][i] = f.EIF[a][j]
			}
		}
	}
	return p
}

// Engine turns point estimates and their EIF columns into standard errors
// and normal-quantile confidence intervals.
type Engine struct {
	level float64
	z     float64
}

// NewEngine creates an inference engine for a two-sided confidence level,
// e.g. 0.95.
func NewEngine(level float64) *Engine {
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return &Engine{level: level, z: norm.Quantile(1 - (1-level)/2)}
}

// Level returns the configured confidence level.
func (e *Engine) Level() float64 { return e.level }

// Summarize builds one Estimate per reported quantity. eifCols holds one
// row per observation and one column per point; the standard error of a
// point is the sample standard deviation of its column divided by sqrt(n).
func (e *Engine) Summarize(index []float64, arms []int, points []float64, eifCols [][]float64) []trial.Estimate {
	n := len(eifCols)
	out := make([]trial.Estimate, len(points))
	col := make([]float64, n)

	for c := range points {
		for i := 0; i < n; i++ {
			col[i] = eifCols[i][c]
		}
		sd, err := stats.StandardDeviationSample(col)
		if err != nil || math.IsNaN(sd) {
			sd = 0
		}
		se := sd / math.Sqrt(float64(n))

		out[c] = trial.Estimate{
			Index:  index[c],
			Arm:    arms[c],
			Point:  points[c],
			StdErr: se,
			CI: trial.Interval{
				Lower: points[c] - e.z*se,
				Upper: points[c] + e.z*se,
			},
		}
	}
	return out
}
