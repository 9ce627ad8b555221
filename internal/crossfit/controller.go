package crossfit

import (
	"context"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"rctmle/domain/core"
)

// Partition is a disjoint, collectively exhaustive split of observation
// indices into V folds, stratified by treatment arm so each fold keeps
// the trial's arm balance.
type Partition struct {
	Folds [][]int
	Seed  int64
}

// V returns the number of folds.
func (p Partition) V() int { return len(p.Folds) }

// Train returns the sorted training indices for fold v: every observation
// not in the fold. In the degenerate V == 1 mode training and prediction
// both use the full sample.
func (p Partition) Train(v int) []int {
	if p.V() == 1 {
		return p.Folds[0]
	}
	var train []int
	for u, fold := range p.Folds {
		if u == v {
			continue
		}
		train = append(train, fold...)
	}
	sort.Ints(train)
	return train
}

// MakePartition assigns observations to v folds, shuffling within each arm
// stratum with a seeded generator so the split is reproducible given the
// same seed and input order.
func MakePartition(arm []int, v int, seed int64) (Partition, error) {
	n := len(arm)
	if v < 1 {
		return Partition{}, core.NewDataError("folds", "V must be >= 1")
	}
	if v > n {
		return Partition{}, core.ErrEmptyFold
	}

	if v == 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return Partition{Folds: [][]int{all}, Seed: seed}, nil
	}

	rng := rand.New(rand.NewSource(seed))
	var strata [2][]int
	for i, a := range arm {
		strata[a] = append(strata[a], i)
	}

	folds := make([][]int, v)
	next := 0
	for _, stratum := range strata {
		rng.Shuffle(len(stratum), func(i, j int) {
			stratum[i], stratum[j] = stratum[j], stratum[i]
		})
		for _, idx := range stratum {
			folds[next%v] = append(folds[next%v], idx)
			next++
		}
	}

	for _, fold := range folds {
		if len(fold) == 0 {
			return Partition{}, core.ErrEmptyFold
		}
		sort.Ints(fold)
	}
	return Partition{Folds: folds, Seed: seed}, nil
}

// FoldFunc trains on the training indices and evaluates on the held-out
// indices of one fold. Implementations write their output into storage
// they own, keyed by fold; the controller never shares state across folds.
type FoldFunc func(ctx context.Context, fold int, train, holdout []int) error

// Run executes fn once per fold, folds in parallel. The first failure
// cancels the remaining folds and is returned as the single atomic
// failure of the whole estimation.
func Run(ctx context.Context, p Partition, fn FoldFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for v := range p.Folds {
		v := v
		g.Go(func() error {
			return fn(ctx, v, p.Train(v), p.Folds[v])
		})
	}
	return g.Wait()
}
