package inference

import (
	"math"
	"testing"

	"rctmle/internal/target"
)

func foldResult(index []int, k int, base float64, converged bool, iterations int) *target.Result {
	r := &target.Result{Index: index, K: k, Converged: converged, Iterations: iterations}
	for a := 0; a < 2; a++ {
		r.Survival[a] = make([]float64, k)
		r.EIF[a] = make([][]float64, len(index))
		for t := 0; t < k; t++ {
			r.Survival[a][t] = base - 0.1*float64(t)
		}
		for j := range index {
			r.EIF[a][j] = make([]float64, k)
			for t := 0; t < k; t++ {
				r.EIF[a][j][t] = float64(index[j]) + 0.1*float64(t)
			}
		}
	}
	return r
}

func TestAggregateAveragesAndReindexes(t *testing.T) {
	f0 := foldResult([]int{0, 2}, 2, 0.9, true, 3)
	f1 := foldResult([]int{1, 3}, 2, 0.7, true, 5)

	p := Aggregate(4, []*target.Result{f0, f1})
	if p.N != 4 || p.K != 2 {
		t.Fatalf("pooled shape (%d,%d), want (4,2)", p.N, p.K)
	}
	if math.Abs(p.Survival[0][0]-0.8) > 1e-12 {
		t.Errorf("pooled S(1) = %g, want the fold average 0.8", p.Survival[0][0])
	}
	if p.Iterations != 5 {
		t.Errorf("pooled iterations = %d, want the fold maximum 5", p.Iterations)
	}
	if !p.Converged {
		t.Error("all folds converged")
	}

	// EIF rows land at their original observation index.
	for i := 0; i < 4; i++ {
		if p.EIF[0][i] == nil {
			t.Fatalf("observation %d has no EIF row", i)
		}
		if got := p.EIF[0][i][0]; got != float64(i) {
			t.Errorf("EIF row %d = %g, want %g", i, got, float64(i))
		}
	}
}

func TestAggregateConvergenceIsConjunction(t *testing.T) {
	f0 := foldResult([]int{0, 1}, 1, 0.9, true, 1)
	f1 := foldResult([]int{2, 3}, 1, 0.9, false, 20)
	p := Aggregate(4, []*target.Result{f0, f1})
	if p.Converged {
		t.Error("one non-converged fold must mark the pooled result non-converged")
	}
}

func TestSummarize(t *testing.T) {
	e := NewEngine(0.95)
	if e.Level() != 0.95 {
		t.Fatalf("level = %g", e.Level())
	}

	// Column {1,-1,1,-1}: mean 0, sample sd sqrt(4/3).
	eif := [][]float64{{1}, {-1}, {1}, {-1}}
	est := e.Summarize([]float64{3}, []int{-1}, []float64{0.25}, eif)
	if len(est) != 1 {
		t.Fatalf("got %d estimates, want 1", len(est))
	}

	wantSE := math.Sqrt(4.0/3.0) / 2
	if math.Abs(est[0].StdErr-wantSE) > 1e-9 {
		t.Errorf("se = %g, want %g", est[0].StdErr, wantSE)
	}

	z := 1.9599639845400545
	if math.Abs(est[0].CI.Lower-(0.25-z*wantSE)) > 1e-6 {
		t.Errorf("lower = %g, want %g", est[0].CI.Lower, 0.25-z*wantSE)
	}
	if math.Abs(est[0].CI.Upper-(0.25+z*wantSE)) > 1e-6 {
		t.Errorf("upper = %g, want %g", est[0].CI.Upper, 0.25+z*wantSE)
	}
	if est[0].Index != 3 || est[0].Arm != -1 || est[0].Point != 0.25 {
		t.Error("estimate metadata not carried through")
	}
}

func TestSummarizeDegenerateColumn(t *testing.T) {
	e := NewEngine(0.9)
	est := e.Summarize([]float64{1}, []int{0}, []float64{0.5}, [][]float64{{0}, {0}})
	if est[0].StdErr != 0 {
		t.Errorf("constant column se = %g, want 0", est[0].StdErr)
	}
	if est[0].CI.Lower != 0.5 || est[0].CI.Upper != 0.5 {
		t.Error("degenerate interval must collapse onto the point")
	}
}

func TestNewEngineRejectsBadLevel(t *testing.T) {
	if NewEngine(0).Level() != 0.95 {
		t.Error("invalid level must fall back to 0.95")
	}
	if NewEngine(1.5).Level() != 0.95 {
		t.Error("invalid level must fall back to 0.95")
	}
}
