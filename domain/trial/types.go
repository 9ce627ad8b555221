package trial

import (
	"fmt"

	"rctmle/domain/core"
)

// OutcomeKind distinguishes the two supported outcome families.
type OutcomeKind string

const (
	OutcomeSurvival OutcomeKind = "survival"
	OutcomeOrdinal  OutcomeKind = "ordinal"
)

// TimeGrid is the ordered sequence of discrete follow-up times shared by
// both arms. Values are the original (coarsened) time points; positions
// 1..K index into it.
type TimeGrid []float64

// K returns the number of grid points.
func (g TimeGrid) K() int { return len(g) }

// Validate checks that the grid is finite, non-empty and strictly increasing.
func (g TimeGrid) Validate() error {
	if len(g) == 0 {
		return core.NewDataError("time_grid", "empty")
	}
	for i := 1; i < len(g); i++ {
		if g[i] <= g[i-1] {
			return core.ErrBadTimeGrid
		}
	}
	return nil
}

// DesignData is the immutable numeric representation of one trial dataset.
// It is constructed once per estimation call and referenced (never copied)
// by all downstream components.
type DesignData struct {
	kind  OutcomeKind
	arm   []int       // 0/1 per observation
	cov   [][]float64 // n x p covariate matrix
	time  []int       // survival: 1-based index into grid
	event []int       // survival: 1 = event, 0 = censored
	level []int       // ordinal: 1-based category index
	grid  TimeGrid
	nlev  int // ordinal: number of ordered levels
}

// NewSurvivalData validates and assembles a survival-outcome dataset.
// time holds 1-based indices into grid; event is 1 for an observed event
// and 0 for censoring at that time.
func NewSurvivalData(arm []int, cov [][]float64, time []int, event []int, grid TimeGrid) (*DesignData, error) {
	n := len(arm)
	if n == 0 {
		return nil, core.NewDataError("arm", "no observations")
	}
	if len(time) != n || len(event) != n || (cov != nil && len(cov) != n) {
		return nil, core.ErrLengthMismatch
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := validateArm(arm); err != nil {
		return nil, err
	}
	for i, t := range time {
		if t < 1 || t > grid.K() {
			return nil, core.NewDataError("time", fmt.Sprintf("observation %d: index %d outside grid 1..%d", i, t, grid.K()))
		}
		if event[i] != 0 && event[i] != 1 {
			return nil, core.NewDataError("event", fmt.Sprintf("observation %d: indicator %d not in {0,1}", i, event[i]))
		}
	}
	return &DesignData{
		kind:  OutcomeSurvival,
		arm:   arm,
		cov:   normalizeCovariates(cov, n),
		time:  time,
		event: event,
		grid:  grid,
	}, nil
}

// NewOrdinalData validates and assembles an ordinal-outcome dataset.
// level holds 1-based indices into the ordered category set of size numLevels.
func NewOrdinalData(arm []int, cov [][]float64, level []int, numLevels int) (*DesignData, error) {
	n := len(arm)
	if n == 0 {
		return nil, core.NewDataError("arm", "no observations")
	}
	if len(level) != n || (cov != nil && len(cov) != n) {
		return nil, core.ErrLengthMismatch
	}
	if numLevels < 2 {
		return nil, core.NewDataError("levels", "ordinal outcome needs at least 2 levels")
	}
	if err := validateArm(arm); err != nil {
		return nil, err
	}
	for i, l := range level {
		if l < 1 || l > numLevels {
			return nil, core.NewDataError("level", fmt.Sprintf("observation %d: level %d outside 1..%d", i, l, numLevels))
		}
	}
	grid := make(TimeGrid, numLevels-1)
	for l := range grid {
		grid[l] = float64(l + 1)
	}
	return &DesignData{
		kind:  OutcomeOrdinal,
		arm:   arm,
		cov:   normalizeCovariates(cov, n),
		level: level,
		grid:  grid,
		nlev:  numLevels,
	}, nil
}

func validateArm(arm []int) error {
	seen0, seen1 := false, false
	for i, a := range arm {
		switch a {
		case 0:
			seen0 = true
		case 1:
			seen1 = true
		default:
			return fmt.Errorf("%w: observation %d has arm %d", core.ErrNonBinaryArm, i, a)
		}
	}
	if !seen0 || !seen1 {
		return fmt.Errorf("%w: both arms must be present", core.ErrNonBinaryArm)
	}
	return nil
}

func normalizeCovariates(cov [][]float64, n int) [][]float64 {
	if cov == nil {
		cov = make([][]float64, n)
		for i := range cov {
			cov[i] = []float64{}
		}
	}
	return cov
}

// Kind returns the outcome family of this dataset.
func (d *DesignData) Kind() OutcomeKind { return d.kind }

// N returns the number of observations.
func (d *DesignData) N() int { return len(d.arm) }

// NumCovariates returns the covariate dimension p.
func (d *DesignData) NumCovariates() int {
	if len(d.cov) == 0 {
		return 0
	}
	return len(d.cov[0])
}

// Arm returns the treatment indicator of observation i.
func (d *DesignData) Arm(i int) int { return d.arm[i] }

// Arms returns the full treatment indicator vector (shared, do not mutate).
func (d *DesignData) Arms() []int { return d.arm }

// Covariates returns the covariate row of observation i (shared, do not mutate).
func (d *DesignData) Covariates(i int) []float64 { return d.cov[i] }

// Grid returns the discrete time grid (levels 1..L-1 for ordinal outcomes).
func (d *DesignData) Grid() TimeGrid { return d.grid }

// NumLevels returns the number of ordered outcome levels (ordinal only).
func (d *DesignData) NumLevels() int { return d.nlev }

// RiskSequence exposes a dataset as a discrete-time risk process: a 1-based
// stopping index, an event indicator and whether a censoring mechanism exists.
// Survival data maps directly. Ordinal data maps each category onto a
// sequential-level "event": Y = l <= L-1 stops at l with an event, Y = L is
// at risk through every modelled level without one. Censoring never occurs
// for ordinal outcomes, so the censoring hazard is structurally zero.
type RiskSequence struct {
	Time     []int // 1-based stopping index, bounded by K = Grid().K()
	Event    []int
	Censored bool // true when a censoring hazard must be modelled
}

// RiskSequence derives the risk-process view of this dataset.
func (d *DesignData) RiskSequence() RiskSequence {
	if d.kind == OutcomeSurvival {
		return RiskSequence{Time: d.time, Event: d.event, Censored: true}
	}
	n := d.N()
	k := d.grid.K()
	t := make([]int, n)
	e := make([]int, n)
	for i, l := range d.level {
		if l <= k {
			t[i] = l
			e[i] = 1
		} else {
			t[i] = k
			e[i] = 0
		}
	}
	return RiskSequence{Time: t, Event: e, Censored: false}
}
