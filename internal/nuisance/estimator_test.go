package nuisance

import (
	"errors"
	"testing"

	"rctmle/adapters/learner"
	"rctmle/domain/core"
	"rctmle/internal/testkit"
)

func TestFitFoldAndPredictShapes(t *testing.T) {
	cfg := testkit.DefaultSurvivalConfig()
	cfg.N = 60
	data, err := testkit.GenerateSurvival(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	est := NewEstimator(data, learner.NewLogisticLearner(), learner.NewMeanLearner(), nil)
	train := make([]int, 0, 40)
	holdout := make([]int, 0, 20)
	for i := 0; i < data.N(); i++ {
		if i%3 == 0 {
			holdout = append(holdout, i)
		} else {
			train = append(train, i)
		}
	}

	fit, err := est.FitFold(0, train)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	preds, err := fit.Predict(holdout)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	if preds.K != cfg.K || len(preds.Index) != len(holdout) {
		t.Fatalf("prediction shape: K=%d n=%d", preds.K, len(preds.Index))
	}
	for a := 0; a < 2; a++ {
		if len(preds.EventHaz[a]) != len(holdout) {
			t.Fatalf("arm %d: %d hazard rows", a, len(preds.EventHaz[a]))
		}
		if preds.CensHaz[a] == nil {
			t.Fatal("survival outcome must carry a censoring hazard")
		}
		for j := range preds.EventHaz[a] {
			if len(preds.EventHaz[a][j]) != cfg.K {
				t.Fatalf("arm %d obs %d: %d hazard columns", a, j, len(preds.EventHaz[a][j]))
			}
			for tt, h := range preds.EventHaz[a][j] {
				if h < 0 || h > 1 {
					t.Errorf("hazard (%d,%d,%d) = %g outside [0,1]", a, j, tt, h)
				}
			}
		}
	}
	for _, p := range preds.Propensity {
		if p < 0 || p > 1 {
			t.Errorf("propensity %g outside [0,1]", p)
		}
	}
}

func TestOrdinalOutcomeHasNoCensoringModel(t *testing.T) {
	data, err := testkit.GenerateOrdinal(testkit.DefaultOrdinalConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	est := NewEstimator(data, learner.NewLogisticLearner(), learner.NewMeanLearner(), nil)

	all := make([]int, data.N())
	for i := range all {
		all[i] = i
	}
	fit, err := est.FitFold(0, all)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	preds, err := fit.Predict(all[:10])
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if preds.CensHaz[0] != nil || preds.CensHaz[1] != nil {
		t.Error("ordinal outcomes are never censored")
	}
}

func TestFitFoldErrors(t *testing.T) {
	data, err := testkit.GenerateSurvival(testkit.DefaultSurvivalConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	est := NewEstimator(data, learner.NewLogisticLearner(), learner.NewMeanLearner(), nil)

	if _, err := est.FitFold(0, nil); !errors.Is(err, core.ErrEmptyFold) {
		t.Errorf("empty fold: %v, want ErrEmptyFold", err)
	}

	// Arms alternate, so even indices are all control.
	var oneArm []int
	for i := 0; i < data.N(); i += 2 {
		oneArm = append(oneArm, i)
	}
	if _, err := est.FitFold(0, oneArm); !errors.Is(err, core.ErrSingleClass) {
		t.Errorf("single-arm fold: %v, want ErrSingleClass", err)
	}
}

func TestLowDimensionalDesignCollapses(t *testing.T) {
	cfg := testkit.DefaultSurvivalConfig()
	cfg.N = 60
	cfg.Covariates = 1
	data, err := testkit.GenerateSurvival(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !CollapseCovariates(data) {
		t.Fatal("single-covariate design must collapse")
	}

	// The estimator drops covariates from its features; swapping in the
	// arm-only learner family is the caller's job.
	est := NewEstimator(data, learner.NewStratifiedLearner(), learner.NewMeanLearner(), nil)
	if !est.dropCov {
		t.Fatal("single-covariate estimator must drop covariate features")
	}
	if est.outcome.Name() != "stratified_frequency" {
		t.Errorf("outcome learner = %s, want the one handed in", est.outcome.Name())
	}

	wide := testkit.DefaultSurvivalConfig()
	wide.N = 60
	full, err := testkit.GenerateSurvival(wide)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if CollapseCovariates(full) {
		t.Error("two-covariate design must not collapse")
	}
}
