package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rctmle/adapters/learner"
	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal"
	"rctmle/internal/crossfit"
	"rctmle/internal/eif"
	"rctmle/internal/estimand"
	"rctmle/internal/inference"
	"rctmle/internal/nuisance"
	"rctmle/internal/target"
	"rctmle/ports"
)

// Options configures one estimation call. Zero values select the
// documented defaults; Epsilon is part of the reproducibility contract
// and is echoed on every result.
type Options struct {
	Folds             int   // 0 = automatic: 1 for parametric learners, 5 otherwise
	Seed              int64 // fold-assignment seed
	Epsilon           float64
	Level             float64 // two-sided confidence level
	Strategy          target.Strategy
	MaxIterations     int
	Tolerance         float64
	OutcomeLearner    ports.Learner
	PropensityLearner ports.Learner
}

// DefaultOptions returns the one-step, logistic-hazard configuration.
// The propensity family is intercept-only: randomization makes the
// propensity near-constant, so covariate complexity there only hurts.
func DefaultOptions() Options {
	return Options{
		Seed:              1,
		Epsilon:           eif.DefaultEpsilon,
		Level:             0.95,
		Strategy:          target.StrategyOneStep,
		MaxIterations:     100,
		Tolerance:         1e-5,
		OutcomeLearner:    learner.NewLogisticLearner(),
		PropensityLearner: learner.NewMeanLearner(),
	}
}

// EstimationService runs the cross-fit / EIF / targeting pipeline and maps
// the targeted curves onto the supported estimands.
type EstimationService struct {
	opts   Options
	logger *internal.Logger
}

// NewEstimationService creates a service; nil logger selects the default.
func NewEstimationService(opts Options, logger *internal.Logger) *EstimationService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if opts.OutcomeLearner == nil {
		opts.OutcomeLearner = learner.NewLogisticLearner()
	}
	if opts.PropensityLearner == nil {
		opts.PropensityLearner = learner.NewMeanLearner()
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = eif.DefaultEpsilon
	}
	if opts.Level <= 0 || opts.Level >= 1 {
		opts.Level = 0.95
	}
	if opts.Strategy == "" {
		opts.Strategy = target.StrategyOneStep
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-5
	}
	return &EstimationService{opts: opts, logger: logger}
}

// RMST estimates the restricted mean survival time difference at the given
// 1-based horizon index, or at every grid point when horizon <= 0.
func (s *EstimationService) RMST(ctx context.Context, data *trial.DesignData, horizon int) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeSurvival); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	sum, err := estimand.RMST(pooled, data.Grid(), horizon)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandRMST, data, pooled, folds, sum), nil
}

// SurvivalProbability estimates S_1(h) - S_0(h) at the given horizon, or
// at every grid point when horizon <= 0.
func (s *EstimationService) SurvivalProbability(ctx context.Context, data *trial.DesignData, horizon int) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeSurvival); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	sum, err := estimand.SurvivalProbability(pooled, data.Grid(), horizon)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandSurvProb, data, pooled, folds, sum), nil
}

// LogOddsRatio estimates the average log odds ratio of an ordinal outcome.
func (s *EstimationService) LogOddsRatio(ctx context.Context, data *trial.DesignData) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeOrdinal); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandLogOdds, data, pooled, folds, estimand.LogOddsRatio(pooled)), nil
}

// MannWhitney estimates P(Y_1 > Y_0) + 0.5 P(Y_1 = Y_0).
func (s *EstimationService) MannWhitney(ctx context.Context, data *trial.DesignData) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeOrdinal); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandMannWhitney, data, pooled, folds, estimand.MannWhitney(pooled)), nil
}

// CDF estimates the counterfactual P(Y <= level) per arm per level.
func (s *EstimationService) CDF(ctx context.Context, data *trial.DesignData) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeOrdinal); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandCDF, data, pooled, folds, estimand.CDF(pooled)), nil
}

// PMF estimates the counterfactual P(Y = level) per arm per level.
func (s *EstimationService) PMF(ctx context.Context, data *trial.DesignData) (*trial.EstimatorResult, error) {
	if err := requireKind(data, trial.OutcomeOrdinal); err != nil {
		return nil, err
	}
	pooled, folds, err := s.run(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.finish(trial.EstimandPMF, data, pooled, folds, estimand.PMF(pooled)), nil
}

// run executes the full cross-fit pipeline: partition, per-fold nuisance
// fit and out-of-fold prediction, EIF construction and targeting, then
// fold aggregation. Any fold failure aborts the whole estimation.
func (s *EstimationService) run(ctx context.Context, data *trial.DesignData) (*inference.Pooled, int, error) {
	folds := s.opts.Folds
	parametric := s.opts.OutcomeLearner.Parametric() && s.opts.PropensityLearner.Parametric()
	if folds == 0 {
		if parametric {
			folds = 1
		} else {
			folds = 5
		}
	}
	if folds == 1 && !parametric {
		return nil, 0, core.ErrCrossFitRequired
	}

	partition, err := crossfit.MakePartition(data.Arms(), folds, s.opts.Seed)
	if err != nil {
		return nil, 0, err
	}

	outcome, propensity := s.opts.OutcomeLearner, s.opts.PropensityLearner
	if nuisance.CollapseCovariates(data) {
		outcome = learner.NewStratifiedLearner()
		propensity = learner.NewMeanLearner()
		s.logger.Debug("estimation: covariate dimension < 2, collapsed to arm-only nuisance families")
	}
	est := nuisance.NewEstimator(data, outcome, propensity, s.logger)
	engine := eif.NewEngine(s.opts.Epsilon)
	risk := data.RiskSequence()
	cfg := target.Config{
		Strategy:      s.opts.Strategy,
		MaxIterations: s.opts.MaxIterations,
		Tolerance:     s.opts.Tolerance,
	}

	results := make([]*target.Result, folds)
	err = crossfit.Run(ctx, partition, func(ctx context.Context, v int, train, holdout []int) error {
		fit, err := est.FitFold(v, train)
		if err != nil {
			return err
		}
		preds, err := fit.Predict(holdout)
		if err != nil {
			return err
		}
		out, err := engine.Build(data, risk, preds)
		if err != nil {
			return err
		}
		results[v] = target.Update(engine, out, cfg)
		s.logger.Debug("estimation: fold %d targeted (%d held out, converged=%v)", v, len(holdout), results[v].Converged)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return inference.Aggregate(data.N(), results), folds, nil
}

// finish attaches standard errors and confidence intervals and stamps the
// reproducibility contract onto the result.
func (s *EstimationService) finish(kind trial.EstimandType, data *trial.DesignData, pooled *inference.Pooled, folds int, sum *estimand.Summary) *trial.EstimatorResult {
	inf := inference.NewEngine(s.opts.Level)
	return &trial.EstimatorResult{
		ID:         uuid.New(),
		Estimand:   kind,
		Estimates:  inf.Summarize(sum.Index, sum.Arms, sum.Points, sum.EIF),
		EIF:        sum.EIF,
		N:          data.N(),
		Folds:      folds,
		Seed:       s.opts.Seed,
		Level:      s.opts.Level,
		Epsilon:    s.opts.Epsilon,
		Converged:  pooled.Converged,
		Iterations: pooled.Iterations,
		Score:      pooled.Score,
		CreatedAt:  time.Now().UTC(),
	}
}

func requireKind(data *trial.DesignData, kind trial.OutcomeKind) error {
	if data.Kind() != kind {
		return fmt.Errorf("%w: estimand requires %s outcome data, got %s", core.ErrData, kind, data.Kind())
	}
	return nil
}
