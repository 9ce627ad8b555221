package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Data errors: the design data itself is unusable
	ErrData             = errors.New("invalid design data")
	ErrNonBinaryArm     = fmt.Errorf("%w: treatment arm is not binary", ErrData)
	ErrEmptyFold        = fmt.Errorf("%w: empty cross-fit fold", ErrData)
	ErrLengthMismatch   = fmt.Errorf("%w: column length mismatch", ErrData)
	ErrBadTimeGrid      = fmt.Errorf("%w: time grid not strictly increasing", ErrData)
	ErrCrossFitRequired = fmt.Errorf("%w: non-parametric learner requires V >= 2 folds", ErrData)

	// Nuisance fit errors: a learner failed or returned garbage
	ErrNuisanceFit        = errors.New("nuisance model fit failed")
	ErrSingleClass        = fmt.Errorf("%w: training fold contains a single class", ErrNuisanceFit)
	ErrInvalidProbability = fmt.Errorf("%w: learner returned probability outside [0,1]", ErrNuisanceFit)

	// Numeric instability: predictions pinned at the clipping boundary
	ErrNumericInstability   = errors.New("numeric instability")
	ErrDegeneratePropensity = fmt.Errorf("%w: propensity at clipping boundary for an entire fold", ErrNumericInstability)
	ErrDegenerateHazard     = fmt.Errorf("%w: hazard at upper clipping boundary for an entire fold", ErrNumericInstability)
)

// NewDataError wraps a data validation failure with field context.
func NewDataError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrData, field, reason)
}

// NewNuisanceFitError wraps an underlying learner failure with the component name.
func NewNuisanceFitError(component string, fold int, err error) error {
	return fmt.Errorf("%w: %s (fold %d): %v", ErrNuisanceFit, component, fold, err)
}

// Error checking helpers
func IsDataError(err error) bool {
	return errors.Is(err, ErrData)
}

func IsNuisanceFitError(err error) bool {
	return errors.Is(err, ErrNuisanceFit)
}

func IsNumericInstabilityError(err error) bool {
	return errors.Is(err, ErrNumericInstability)
}
