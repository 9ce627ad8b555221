package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"rctmle/domain/trial"
)

// SurvivalConfig parameterizes a synthetic two-arm survival trial with a
// discrete-time geometric-style hazard. HazardShift moves the event
// hazard of arm 1 on the log-odds scale (0 = identical arms, negative =
// arm 1 survives longer). CovariateEffect couples the hazard to the first
// covariate so adjustment has something to recover.
type SurvivalConfig struct {
	N               int
	K               int // grid length
	Seed            int64
	BaseHazard      float64
	HazardShift     float64
	CensorHazard    float64
	Covariates      int
	CovariateEffect float64
}

// DefaultSurvivalConfig returns a moderate-size, moderately censored trial.
func DefaultSurvivalConfig() SurvivalConfig {
	return SurvivalConfig{
		N:               400,
		K:               8,
		Seed:            42,
		BaseHazard:      0.15,
		HazardShift:     0,
		CensorHazard:    0.05,
		Covariates:      2,
		CovariateEffect: 0.5,
	}
}

// GenerateSurvival simulates a survival trial: randomized arms, standard
// normal covariates, per-period event/censoring draws on the grid 1..K,
// administrative censoring at K.
func GenerateSurvival(cfg SurvivalConfig) (*trial.DesignData, error) {
	if cfg.N <= 0 || cfg.K <= 0 {
		return nil, fmt.Errorf("testkit: N and K must be positive")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	arm := make([]int, cfg.N)
	cov := make([][]float64, cfg.N)
	times := make([]int, cfg.N)
	events := make([]int, cfg.N)

	for i := 0; i < cfg.N; i++ {
		arm[i] = i % 2 // deterministic 1:1 allocation keeps arms balanced
		cov[i] = make([]float64, cfg.Covariates)
		for j := range cov[i] {
			cov[i][j] = rng.NormFloat64()
		}

		eta := logit(cfg.BaseHazard) + float64(arm[i])*cfg.HazardShift
		if cfg.Covariates > 0 {
			eta += cfg.CovariateEffect * cov[i][0]
		}
		h := expit(eta)

		times[i] = cfg.K
		events[i] = 0
		for t := 1; t <= cfg.K; t++ {
			if rng.Float64() < h {
				times[i] = t
				events[i] = 1
				break
			}
			if rng.Float64() < cfg.CensorHazard {
				times[i] = t
				events[i] = 0
				break
			}
		}
	}

	grid := make(trial.TimeGrid, cfg.K)
	for t := range grid {
		grid[t] = float64(t + 1)
	}
	return trial.NewSurvivalData(arm, cov, times, events, grid)
}

// OrdinalConfig parameterizes a synthetic two-arm ordinal trial.
// Shift moves arm 1's latent score upward so higher categories become
// more likely (stochastic dominance when Shift > 0).
type OrdinalConfig struct {
	N          int
	Levels     int
	Seed       int64
	Shift      float64
	Covariates int
}

// DefaultOrdinalConfig returns a five-level trial with no treatment effect.
func DefaultOrdinalConfig() OrdinalConfig {
	return OrdinalConfig{N: 400, Levels: 5, Seed: 42, Shift: 0, Covariates: 2}
}

// GenerateOrdinal simulates an ordinal trial by thresholding a logistic
// latent score at evenly spaced cut points.
func GenerateOrdinal(cfg OrdinalConfig) (*trial.DesignData, error) {
	if cfg.N <= 0 || cfg.Levels < 2 {
		return nil, fmt.Errorf("testkit: N must be positive and Levels >= 2")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	arm := make([]int, cfg.N)
	cov := make([][]float64, cfg.N)
	level := make([]int, cfg.N)

	for i := 0; i < cfg.N; i++ {
		arm[i] = i % 2
		cov[i] = make([]float64, cfg.Covariates)
		for j := range cov[i] {
			cov[i][j] = rng.NormFloat64()
		}

		score := rng.NormFloat64() + float64(arm[i])*cfg.Shift
		if cfg.Covariates > 0 {
			score += 0.4 * cov[i][0]
		}

		// Even cut points over roughly +/- 2 standard deviations.
		level[i] = 1
		for l := 1; l < cfg.Levels; l++ {
			cut := -2 + 4*float64(l)/float64(cfg.Levels)
			if score > cut {
				level[i] = l + 1
			}
		}
	}
	return trial.NewOrdinalData(arm, cov, level, cfg.Levels)
}

func expit(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
