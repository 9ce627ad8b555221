package nuisance

import (
	"testing"

	"rctmle/domain/trial"
)

func smallSurvival(t *testing.T) *trial.DesignData {
	t.Helper()
	arm := []int{0, 1, 0, 1}
	cov := [][]float64{{0.5, -1}, {1, 0}, {-0.5, 2}, {0, 0}}
	times := []int{2, 3, 1, 3}
	events := []int{1, 0, 1, 1}
	d, err := trial.NewSurvivalData(arm, cov, times, events, trial.TimeGrid{1, 2, 3})
	if err != nil {
		t.Fatalf("build data: %v", err)
	}
	return d
}

func TestFeatureRowLayout(t *testing.T) {
	row := featureRow(2, 3, 1, []float64{0.7, -0.3}, false)
	want := []float64{0, 1, 0, 1, 0.7, -0.3}
	if len(row) != len(want) {
		t.Fatalf("row width %d, want %d", len(row), len(want))
	}
	for j := range want {
		if row[j] != want[j] {
			t.Errorf("row[%d] = %g, want %g", j, row[j], want[j])
		}
	}

	dropped := featureRow(2, 3, 1, []float64{0.7, -0.3}, true)
	if len(dropped) != 4 {
		t.Errorf("collapsed row width %d, want 4 (time dummies + arm)", len(dropped))
	}
}

func TestExpandRiskRowsEventResponse(t *testing.T) {
	d := smallSurvival(t)
	risk := d.RiskSequence()

	X, y := expandRiskRows(d, risk, []int{0, 1, 2, 3}, true, false)
	// Person-time rows: 2 + 3 + 1 + 3.
	if len(X) != 9 || len(y) != 9 {
		t.Fatalf("got %d rows, want 9", len(X))
	}

	// Event responses fire only at T_i for subjects with an event.
	want := []float64{
		0, 1, // obs 0: event at t=2
		0, 0, 0, // obs 1: censored at t=3
		1,       // obs 2: event at t=1
		0, 0, 1, // obs 3: event at t=3
	}
	for i := range want {
		if y[i] != want[i] {
			t.Errorf("y[%d] = %g, want %g", i, y[i], want[i])
		}
	}
}

func TestExpandRiskRowsCensoringResponse(t *testing.T) {
	d := smallSurvival(t)
	risk := d.RiskSequence()

	_, y := expandRiskRows(d, risk, []int{0, 1, 2, 3}, false, false)
	want := []float64{
		0, 0,
		0, 0, 1, // obs 1 is the only censoring
		0,
		0, 0, 0,
	}
	for i := range want {
		if y[i] != want[i] {
			t.Errorf("y[%d] = %g, want %g", i, y[i], want[i])
		}
	}
}

func TestCounterfactualRowsForceArm(t *testing.T) {
	d := smallSurvival(t)

	rows := counterfactualRows(d, []int{0, 3}, 1, false)
	if len(rows) != 2*3 {
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	for i, row := range rows {
		if row[3] != 1 {
			t.Errorf("row %d: forced arm column = %g, want 1", i, row[3])
		}
	}
	// Observation-major ordering: first K rows carry obs 0's covariates.
	if rows[0][4] != 0.5 || rows[3][4] != 0 {
		t.Error("rows are not observation-major")
	}
}
