package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"rctmle/app"
	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal"
	"rctmle/internal/config"
	"rctmle/internal/target"
	"rctmle/ports"
)

// App wires the HTTP routes onto the estimation service. Results are
// persisted through the repository when one is configured; estimation
// still works without it, the result is just not retrievable later.
type App struct {
	router   chi.Router
	defaults config.EstimatorConfig
	repo     ports.ResultRepository
	logger   *internal.Logger
}

// NewApp creates the HTTP application. repo may be nil.
func NewApp(defaults config.EstimatorConfig, repo ports.ResultRepository, logger *internal.Logger) *App {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	a := &App{
		router:   chi.NewRouter(),
		defaults: defaults,
		repo:     repo,
		logger:   logger,
	}
	a.routes()
	return a
}

func (a *App) routes() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))

	a.router.Post("/api/estimate", a.handleEstimate)
	a.router.Get("/api/results", a.handleListResults)
	a.router.Get("/api/results/{id}", a.handleGetResult)
	a.router.Get("/health", a.handleHealth)
}

// Handler returns the root http.Handler.
func (a *App) Handler() http.Handler { return a.router }

// EstimateRequest is the JSON body of POST /api/estimate. Survival
// outcomes carry time/event/grid, ordinal outcomes carry level/num_levels.
type EstimateRequest struct {
	Estimand string      `json:"estimand"`
	Outcome  string      `json:"outcome"` // "survival" or "ordinal"
	Arm      []int       `json:"arm"`
	Cov      [][]float64 `json:"covariates,omitempty"`

	Time  []int     `json:"time,omitempty"`
	Event []int     `json:"event,omitempty"`
	Grid  []float64 `json:"grid,omitempty"`

	Level     []int `json:"level,omitempty"`
	NumLevels int   `json:"num_levels,omitempty"`

	Horizon         int     `json:"horizon,omitempty"` // 1-based grid index; 0 = all
	Folds           int     `json:"folds,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
	Epsilon         float64 `json:"epsilon,omitempty"`
	ConfidenceLevel float64 `json:"confidence_level,omitempty"`
	Strategy        string  `json:"strategy,omitempty"`
}

// EstimateResponse mirrors the stored result minus the per-observation
// influence matrix, which is too large for a synchronous response.
type EstimateResponse struct {
	ID         uuid.UUID          `json:"id"`
	Estimand   trial.EstimandType `json:"estimand"`
	Estimates  []trial.Estimate   `json:"estimates"`
	N          int                `json:"n"`
	Folds      int                `json:"folds"`
	Seed       int64              `json:"seed"`
	Level      float64            `json:"confidence_level"`
	Epsilon    float64            `json:"epsilon"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Score      float64            `json:"score"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (a *App) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	data, err := req.design()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	svc := app.NewEstimationService(a.options(req), a.logger)
	result, err := a.dispatch(r, svc, data, req)
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsDataError(err) || errors.Is(err, core.ErrCrossFitRequired) {
			status = http.StatusBadRequest
		}
		a.writeError(w, status, err)
		return
	}

	if a.repo != nil {
		if err := a.repo.Save(r.Context(), result); err != nil {
			a.logger.Error("api: persist result %s: %v", result.ID, err)
		}
	}
	a.writeJSON(w, http.StatusOK, toResponse(result))
}

func (a *App) dispatch(r *http.Request, svc *app.EstimationService, data *trial.DesignData, req EstimateRequest) (*trial.EstimatorResult, error) {
	ctx := r.Context()
	switch trial.EstimandType(req.Estimand) {
	case trial.EstimandRMST:
		return svc.RMST(ctx, data, req.Horizon)
	case trial.EstimandSurvProb:
		return svc.SurvivalProbability(ctx, data, req.Horizon)
	case trial.EstimandLogOdds:
		return svc.LogOddsRatio(ctx, data)
	case trial.EstimandMannWhitney:
		return svc.MannWhitney(ctx, data)
	case trial.EstimandCDF:
		return svc.CDF(ctx, data)
	case trial.EstimandPMF:
		return svc.PMF(ctx, data)
	default:
		return nil, core.NewDataError("estimand", fmt.Sprintf("unknown estimand %q", req.Estimand))
	}
}

func (a *App) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil {
		a.writeError(w, http.StatusNotFound, fmt.Errorf("result store not configured"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid result id: %w", err))
		return
	}
	result, err := a.repo.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, http.StatusNotFound, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toResponse(result))
}

func (a *App) handleListResults(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil {
		a.writeJSON(w, http.StatusOK, []EstimateResponse{})
		return
	}
	results, err := a.repo.List(r.Context(), 50)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]EstimateResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResponse(res))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (req EstimateRequest) design() (*trial.DesignData, error) {
	switch trial.OutcomeKind(req.Outcome) {
	case trial.OutcomeSurvival:
		grid := trial.TimeGrid(req.Grid)
		if len(grid) == 0 {
			// Default grid 1..max(time) when none supplied.
			maxT := 0
			for _, t := range req.Time {
				if t > maxT {
					maxT = t
				}
			}
			grid = make(trial.TimeGrid, maxT)
			for t := range grid {
				grid[t] = float64(t + 1)
			}
		}
		return trial.NewSurvivalData(req.Arm, req.Cov, req.Time, req.Event, grid)
	case trial.OutcomeOrdinal:
		return trial.NewOrdinalData(req.Arm, req.Cov, req.Level, req.NumLevels)
	default:
		return nil, core.NewDataError("outcome", fmt.Sprintf("unknown outcome kind %q", req.Outcome))
	}
}

func (a *App) options(req EstimateRequest) app.Options {
	opts := app.DefaultOptions()
	opts.Folds = a.defaults.Folds
	opts.Seed = a.defaults.Seed
	opts.Epsilon = a.defaults.Epsilon
	opts.Level = a.defaults.Level
	if req.Folds > 0 {
		opts.Folds = req.Folds
	}
	if req.Seed != 0 {
		opts.Seed = req.Seed
	}
	if req.Epsilon > 0 {
		opts.Epsilon = req.Epsilon
	}
	if req.ConfidenceLevel > 0 && req.ConfidenceLevel < 1 {
		opts.Level = req.ConfidenceLevel
	}
	if req.Strategy != "" {
		opts.Strategy = target.Strategy(req.Strategy)
	}
	return opts
}

func toResponse(res *trial.EstimatorResult) EstimateResponse {
	return EstimateResponse{
		ID:         res.ID,
		Estimand:   res.Estimand,
		Estimates:  res.Estimates,
		N:          res.N,
		Folds:      res.Folds,
		Seed:       res.Seed,
		Level:      res.Level,
		Epsilon:    res.Epsilon,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Score:      res.Score,
		CreatedAt:  res.CreatedAt,
	}
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("api: encode response: %v", err)
	}
}

func (a *App) writeError(w http.ResponseWriter, status int, err error) {
	a.logger.Warn("api: %d %v", status, err)
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
