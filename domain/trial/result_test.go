package trial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointAt(t *testing.T) {
	res := &EstimatorResult{
		Estimand: EstimandCDF,
		Estimates: []Estimate{
			{Index: 1, Arm: 0, Point: 0.2},
			{Index: 1, Arm: 1, Point: 0.1},
			{Index: 2, Arm: 0, Point: 0.6},
		},
	}

	p, ok := res.PointAt(1, 1)
	require.True(t, ok)
	assert.Equal(t, 0.1, p)

	p, ok = res.PointAt(2, 0)
	require.True(t, ok)
	assert.Equal(t, 0.6, p)

	_, ok = res.PointAt(3, 0)
	assert.False(t, ok)
}
