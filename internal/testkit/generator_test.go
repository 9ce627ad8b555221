package testkit

import (
	"testing"

	"rctmle/domain/trial"
)

func TestGenerateSurvival(t *testing.T) {
	cfg := DefaultSurvivalConfig()
	d, err := GenerateSurvival(cfg)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if d.N() != cfg.N || d.Grid().K() != cfg.K {
		t.Errorf("shape (%d,%d), want (%d,%d)", d.N(), d.Grid().K(), cfg.N, cfg.K)
	}
	if d.Kind() != trial.OutcomeSurvival {
		t.Errorf("kind = %s", d.Kind())
	}

	// Deterministic alternation keeps the arms exactly balanced.
	treated := 0
	for i := 0; i < d.N(); i++ {
		treated += d.Arm(i)
	}
	if treated != cfg.N/2 {
		t.Errorf("%d treated of %d", treated, cfg.N)
	}

	// Same seed, same trial.
	d2, _ := GenerateSurvival(cfg)
	risk, risk2 := d.RiskSequence(), d2.RiskSequence()
	for i := 0; i < d.N(); i++ {
		if risk.Time[i] != risk2.Time[i] || risk.Event[i] != risk2.Event[i] {
			t.Fatalf("seeded generation is not reproducible at observation %d", i)
		}
	}
}

func TestGenerateSurvivalRejectsBadConfig(t *testing.T) {
	if _, err := GenerateSurvival(SurvivalConfig{N: 0, K: 5}); err == nil {
		t.Error("N=0 must fail")
	}
	if _, err := GenerateSurvival(SurvivalConfig{N: 10, K: 0}); err == nil {
		t.Error("K=0 must fail")
	}
}

func TestGenerateOrdinal(t *testing.T) {
	cfg := DefaultOrdinalConfig()
	d, err := GenerateOrdinal(cfg)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if d.Kind() != trial.OutcomeOrdinal || d.NumLevels() != cfg.Levels {
		t.Errorf("kind=%s levels=%d", d.Kind(), d.NumLevels())
	}
	if d.Grid().K() != cfg.Levels-1 {
		t.Errorf("K = %d, want %d", d.Grid().K(), cfg.Levels-1)
	}

	if _, err := GenerateOrdinal(OrdinalConfig{N: 10, Levels: 1}); err == nil {
		t.Error("Levels=1 must fail")
	}
}
