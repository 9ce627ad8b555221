package estimand

import (
	"math"

	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal/inference"
)

// ContrastArm marks an estimate as a between-arm contrast rather than a
// per-arm quantity.
const ContrastArm = -1

// Summary is a calculator output ready for inference: one entry per
// reported quantity, with the per-observation EIF column behind each.
type Summary struct {
	Index  []float64 // time horizon value or outcome level
	Arms   []int     // 0/1 for per-arm quantities, ContrastArm otherwise
	Points []float64
	EIF    [][]float64 // n rows x len(Points) columns
}

func newSummary(n, d int) *Summary {
	s := &Summary{
		Index:  make([]float64, d),
		Arms:   make([]int, d),
		Points: make([]float64, d),
		EIF:    make([][]float64, n),
	}
	for i := range s.EIF {
		s.EIF[i] = make([]float64, d)
	}
	return s
}

// RMST reports the restricted mean survival time difference between arms
// at the given horizon (1-based grid index), or at every grid point when
// horizon <= 0. The RMST at h is the sum of S_a(t) over t = 1..h, so it
// is exactly the cumulative sum of the survival-probability estimates.
func RMST(p *inference.Pooled, grid trial.TimeGrid, horizon int) (*Summary, error) {
	horizons, err := horizonsFor(p.K, horizon)
	if err != nil {
		return nil, err
	}
	s := newSummary(p.N, len(horizons))
	for c, h := range horizons {
		s.Index[c] = grid[h-1]
		s.Arms[c] = ContrastArm
		for t := 0; t < h; t++ {
			s.Points[c] += p.Survival[1][t] - p.Survival[0][t]
			for i := 0; i < p.N; i++ {
				s.EIF[i][c] += p.EIF[1][i][t] - p.EIF[0][i][t]
			}
		}
	}
	return s, nil
}

// SurvivalProbability reports S_1(h) - S_0(h) at the given horizon, or at
// every grid point when horizon <= 0.
func SurvivalProbability(p *inference.Pooled, grid trial.TimeGrid, horizon int) (*Summary, error) {
	horizons, err := horizonsFor(p.K, horizon)
	if err != nil {
		return nil, err
	}
	s := newSummary(p.N, len(horizons))
	for c, h := range horizons {
		s.Index[c] = grid[h-1]
		s.Arms[c] = ContrastArm
		s.Points[c] = p.Survival[1][h-1] - p.Survival[0][h-1]
		for i := 0; i < p.N; i++ {
			s.EIF[i][c] = p.EIF[1][i][h-1] - p.EIF[0][i][h-1]
		}
	}
	return s, nil
}

// CDF reports the targeted counterfactual P(Y <= level) per arm per level.
// The top level is structurally 1 with a zero influence column.
func CDF(p *inference.Pooled) *Summary {
	F, eifF := cdfFrom(p)
	L := p.K + 1
	s := newSummary(p.N, 2*L)
	for a := 0; a < 2; a++ {
		for l := 1; l <= L; l++ {
			c := a*L + l - 1
			s.Index[c] = float64(l)
			s.Arms[c] = a
			s.Points[c] = F[a][l-1]
			for i := 0; i < p.N; i++ {
				s.EIF[i][c] = eifF[a][i][l-1]
			}
		}
	}
	return s
}

// PMF reports the per-arm probability mass per level, derived as first
// differences of the targeted CDF; the first level's PMF equals its CDF.
func PMF(p *inference.Pooled) *Summary {
	F, eifF := cdfFrom(p)
	L := p.K + 1
	s := newSummary(p.N, 2*L)
	for a := 0; a < 2; a++ {
		for l := 1; l <= L; l++ {
			c := a*L + l - 1
			s.Index[c] = float64(l)
			s.Arms[c] = a
			prevF, prevEIF := 0.0, 0.0
			if l > 1 {
				prevF = F[a][l-2]
			}
			s.Points[c] = F[a][l-1] - prevF
			for i := 0; i < p.N; i++ {
				if l > 1 {
					prevEIF = eifF[a][i][l-2]
				}
				s.EIF[i][c] = eifF[a][i][l-1] - prevEIF
			}
		}
	}
	return s
}

// LogOddsRatio reports the average over levels of the log odds of
// Y <= level under arm 1 versus arm 0, a single proportional-odds-free
// summary of the two targeted CDFs. The delta method maps each level's
// CDF influence through d logit(F)/dF = 1/(F(1-F)).
func LogOddsRatio(p *inference.Pooled) *Summary {
	F, eifF := cdfFrom(p)
	s := newSummary(p.N, 1)
	s.Arms[0] = ContrastArm

	levels := float64(p.K) // L-1 modelled levels; the top level is fixed
	for l := 0; l < p.K; l++ {
		f1 := boundAway(F[1][l])
		f0 := boundAway(F[0][l])
		s.Points[0] += (logit(f1) - logit(f0)) / levels
		d1 := 1 / (f1 * (1 - f1))
		d0 := 1 / (f0 * (1 - f0))
		for i := 0; i < p.N; i++ {
			s.EIF[i][0] += (d1*eifF[1][i][l] - d0*eifF[0][i][l]) / levels
		}
	}
	return s
}

// MannWhitney reports P(Y_1 > Y_0) + 0.5 P(Y_1 = Y_0) from the two arms'
// targeted CDFs, ties split evenly. The influence column follows from the
// gradient of the bilinear form in the two CDFs.
func MannWhitney(p *inference.Pooled) *Summary {
	F, eifF := cdfFrom(p)
	L := p.K + 1
	pmf := func(a, l int) float64 { // 1-based level
		if l == 1 {
			return F[a][0]
		}
		return F[a][l-1] - F[a][l-2]
	}

	s := newSummary(p.N, 1)
	s.Arms[0] = ContrastArm

	for l := 1; l <= L; l++ {
		prevF0 := 0.0
		if l > 1 {
			prevF0 = F[0][l-2]
		}
		s.Points[0] += pmf(1, l) * (prevF0 + pmf(0, l)/2)
	}

	// Only levels 1..L-1 carry influence; F(L) = 1 is fixed.
	for l := 1; l < L; l++ {
		g1 := -(pmf(0, l) + pmf(0, l+1)) / 2
		g0 := (pmf(1, l) + pmf(1, l+1)) / 2
		for i := 0; i < p.N; i++ {
			s.EIF[i][0] += g1*eifF[1][i][l-1] + g0*eifF[0][i][l-1]
		}
	}
	return s
}

// cdfFrom converts the survival-form pooled curves into CDFs over the full
// level set 1..L, with F(L) = 1 structurally: F_a(l) = 1 - S_a(l) and the
// influence flips sign accordingly.
func cdfFrom(p *inference.Pooled) (F [2][]float64, eifF [2][][]float64) {
	L := p.K + 1
	for a := 0; a < 2; a++ {
		F[a] = make([]float64, L)
		eifF[a] = make([][]float64, p.N)
		for l := 0; l < p.K; l++ {
			F[a][l] = 1 - p.Survival[a][l]
		}
		F[a][L-1] = 1
		for i := 0; i < p.N; i++ {
			eifF[a][i] = make([]float64, L)
			for l := 0; l < p.K; l++ {
				eifF[a][i][l] = -p.EIF[a][i][l]
			}
		}
	}
	return F, eifF
}

func horizonsFor(k, horizon int) ([]int, error) {
	if horizon > k {
		return nil, core.NewDataError("horizon", "beyond the time grid")
	}
	if horizon > 0 {
		return []int{horizon}, nil
	}
	all := make([]int, k)
	for t := range all {
		all[t] = t + 1
	}
	return all, nil
}

func boundAway(p float64) float64 {
	const tiny = 1e-12
	return math.Min(math.Max(p, tiny), 1-tiny)
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
