package eif

import (
	"errors"
	"math"
	"testing"

	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal/nuisance"
)

// twoObsPredictions builds a hand-checkable one-period fold: one subject
// per arm, known hazards, no censoring hazard before t = 1.
func twoObsPredictions() (*trial.DesignData, trial.RiskSequence, *nuisance.Predictions) {
	data, err := trial.NewSurvivalData(
		[]int{0, 1},
		[][]float64{{0}, {0}},
		[]int{1, 1},
		[]int{1, 0},
		trial.TimeGrid{1},
	)
	if err != nil {
		panic(err)
	}
	preds := &nuisance.Predictions{
		Index:      []int{0, 1},
		Propensity: []float64{0.6, 0.6},
		K:          1,
	}
	preds.EventHaz[0] = [][]float64{{0.2}, {0.3}}
	preds.EventHaz[1] = [][]float64{{0.4}, {0.5}}
	preds.CensHaz[0] = [][]float64{{0.1}, {0.1}}
	preds.CensHaz[1] = [][]float64{{0.1}, {0.1}}
	return data, data.RiskSequence(), preds
}

func TestBuildHandChecked(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	out, err := NewEngine(0).Build(data, risk, preds)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Product-limit over one period is just 1 - hazard.
	if got := out.CondSurv[0][0][0]; math.Abs(got-0.8) > 1e-12 {
		t.Errorf("S_0(1|X_0) = %g, want 0.8", got)
	}
	if got := out.Survival[0][0]; math.Abs(got-0.75) > 1e-12 {
		t.Errorf("S_0(1) = %g, want 0.75", got)
	}
	if got := out.Survival[1][0]; math.Abs(got-0.55) > 1e-12 {
		t.Errorf("S_1(1) = %g, want 0.55", got)
	}

	// G just before t = 1 is 1 regardless of the censoring hazard.
	for a := 0; a < 2; a++ {
		for j := 0; j < 2; j++ {
			if out.CensBefore[a][j][0] != 1 {
				t.Errorf("G_%d(0|X_%d) = %g, want 1", a, j, out.CensBefore[a][j][0])
			}
		}
	}

	// Obs 0 (arm 0, event at 1): -1/0.4 * (1-0.2) + 0.8 - 0.75.
	if got, want := out.EIF[0][0][0], -2.5*0.8+0.05; math.Abs(got-want) > 1e-12 {
		t.Errorf("EIF_0 obs 0 = %g, want %g", got, want)
	}
	// Obs 1 is in the other arm: centering term only.
	if got, want := out.EIF[0][1][0], 0.7-0.75; math.Abs(got-want) > 1e-12 {
		t.Errorf("EIF_0 obs 1 = %g, want %g", got, want)
	}
	// Obs 1 (arm 1, censored at 1): -(1/0.6)*(0-0.5) + 0.5 - 0.55.
	if got, want := out.EIF[1][1][0], 0.5/0.6-0.05; math.Abs(got-want) > 1e-12 {
		t.Errorf("EIF_1 obs 1 = %g, want %g", got, want)
	}
	if got, want := out.EIF[1][0][0], 0.6-0.55; math.Abs(got-want) > 1e-12 {
		t.Errorf("EIF_1 obs 0 = %g, want %g", got, want)
	}
}

func TestBuildCurveShape(t *testing.T) {
	data, err := trial.NewSurvivalData(
		[]int{0, 1, 0, 1},
		[][]float64{{0}, {0}, {0}, {0}},
		[]int{1, 2, 3, 3},
		[]int{1, 1, 0, 1},
		trial.TimeGrid{1, 2, 3},
	)
	if err != nil {
		t.Fatalf("build data: %v", err)
	}
	preds := &nuisance.Predictions{
		Index:      []int{0, 1, 2, 3},
		Propensity: []float64{0.5, 0.5, 0.5, 0.5},
		K:          3,
	}
	for a := 0; a < 2; a++ {
		preds.EventHaz[a] = make([][]float64, 4)
		preds.CensHaz[a] = make([][]float64, 4)
		for j := 0; j < 4; j++ {
			preds.EventHaz[a][j] = []float64{0.1 + 0.1*float64(a), 0.2, 0.3}
			preds.CensHaz[a][j] = []float64{0.05, 0.05, 0.05}
		}
	}

	out, err := NewEngine(0).Build(data, data.RiskSequence(), preds)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for a := 0; a < 2; a++ {
		prev := 1.0
		for tt := 0; tt < out.K; tt++ {
			s := out.Survival[a][tt]
			if s < 0 || s > 1 {
				t.Errorf("S_%d(%d) = %g outside [0,1]", a, tt+1, s)
			}
			if s > prev+1e-12 {
				t.Errorf("S_%d increased at t=%d: %g > %g", a, tt+1, s, prev)
			}
			prev = s
		}
	}

	// The centering part of each EIF column sums to zero, so the column
	// mean equals the mean weighted martingale residual; it must be finite.
	for a := 0; a < 2; a++ {
		for tt := 0; tt < out.K; tt++ {
			sum := 0.0
			for j := 0; j < 4; j++ {
				sum += out.CondSurv[a][j][tt] - out.Survival[a][tt]
				if math.IsNaN(out.EIF[a][j][tt]) {
					t.Fatalf("EIF_%d[%d][%d] is NaN", a, j, tt)
				}
			}
			if math.Abs(sum) > 1e-12 {
				t.Errorf("centering term mean = %g at (a=%d,t=%d), want 0", sum/4, a, tt)
			}
		}
	}
}

func TestRebuildMatchesBuild(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	engine := NewEngine(0)
	out, err := engine.Build(data, risk, preds)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	before := append([]float64(nil), out.Survival[0]...)
	eifBefore := out.EIF[0][0][0]
	engine.Rebuild(out, 0)
	if out.Survival[0][0] != before[0] {
		t.Errorf("Rebuild changed the plug-in: %g != %g", out.Survival[0][0], before[0])
	}
	if out.EIF[0][0][0] != eifBefore {
		t.Errorf("Rebuild changed the EIF: %g != %g", out.EIF[0][0][0], eifBefore)
	}
}

func TestBuildClipsHazards(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	preds.EventHaz[0] = [][]float64{{0}, {1}}

	out, err := NewEngine(1e-3).Build(data, risk, preds)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := out.EventHaz[0][0][0]; got != 1e-3 {
		t.Errorf("hazard 0 clipped to %g, want 1e-3", got)
	}
	if got := out.EventHaz[0][1][0]; got != 1-1e-3 {
		t.Errorf("hazard 1 clipped to %g, want 1-1e-3", got)
	}
}

func TestBuildDegeneratePropensity(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	preds.Propensity = []float64{0, 1}

	_, err := NewEngine(1e-6).Build(data, risk, preds)
	if !errors.Is(err, core.ErrDegeneratePropensity) {
		t.Errorf("got %v, want ErrDegeneratePropensity", err)
	}
}

func TestBuildDegenerateEventHazard(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	preds.EventHaz[0] = [][]float64{{1}, {1}}

	_, err := NewEngine(1e-6).Build(data, risk, preds)
	if !errors.Is(err, core.ErrDegenerateHazard) {
		t.Errorf("got %v, want ErrDegenerateHazard", err)
	}
	if !core.IsNumericInstabilityError(err) {
		t.Errorf("%v is not a numeric instability error", err)
	}
}

func TestBuildDegenerateCensoringHazard(t *testing.T) {
	data, risk, preds := twoObsPredictions()
	preds.CensHaz[1] = [][]float64{{0.9999999}, {1}}

	_, err := NewEngine(1e-6).Build(data, risk, preds)
	if !errors.Is(err, core.ErrDegenerateHazard) {
		t.Errorf("got %v, want ErrDegenerateHazard", err)
	}
}

func TestBuildAllowsEventFreeFold(t *testing.T) {
	// Zero hazards clip to the lower boundary everywhere; that is an
	// event-free arm, not an instability.
	data, risk, preds := twoObsPredictions()
	preds.EventHaz[0] = [][]float64{{0}, {0}}
	preds.EventHaz[1] = [][]float64{{0}, {0}}

	out, err := NewEngine(1e-6).Build(data, risk, preds)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for a := 0; a < 2; a++ {
		if got := out.Survival[a][0]; got < 1-1e-5 {
			t.Errorf("S_%d(1) = %g, want ~1", a, got)
		}
	}
}

func TestNewEngineDefaultEpsilon(t *testing.T) {
	if NewEngine(0).Epsilon() != DefaultEpsilon {
		t.Error("non-positive epsilon must select the default")
	}
	if NewEngine(1e-3).Epsilon() != 1e-3 {
		t.Error("explicit epsilon must be kept")
	}
}
