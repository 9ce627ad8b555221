package nuisance

import (
	"rctmle/domain/trial"
)

// featureRow encodes one person-time row for the pooled hazard models:
// K time dummies, the treatment indicator, then covariates (dropped when
// the design collapses to the arm-only family).
func featureRow(t, k, arm int, cov []float64, dropCov bool) []float64 {
	width := k + 1
	if !dropCov {
		width += len(cov)
	}
	row := make([]float64, width)
	row[t-1] = 1
	row[k] = float64(arm)
	if !dropCov {
		copy(row[k+1:], cov)
	}
	return row
}

// expandRiskRows stacks one row per subject per time point at risk
// (t = 1..T_i) over the given indices. The response is 1 when the subject
// stops at t with the requested indicator value: event == true selects
// event rows, event == false selects censoring rows.
func expandRiskRows(data *trial.DesignData, risk trial.RiskSequence, idx []int, event bool, dropCov bool) ([][]float64, []float64) {
	k := data.Grid().K()
	var X [][]float64
	var y []float64
	for _, i := range idx {
		ti := risk.Time[i]
		for t := 1; t <= ti; t++ {
			X = append(X, featureRow(t, k, data.Arm(i), data.Covariates(i), dropCov))
			stop := 0.0
			if t == ti {
				if event && risk.Event[i] == 1 {
					stop = 1
				}
				if !event && risk.Event[i] == 0 {
					stop = 1
				}
			}
			y = append(y, stop)
		}
	}
	return X, y
}

// counterfactualRows builds prediction rows for every observation in idx
// at every time point 1..K under the forced arm value a. Rows are ordered
// observation-major: all K rows of idx[0], then idx[1], and so on.
func counterfactualRows(data *trial.DesignData, idx []int, a int, dropCov bool) [][]float64 {
	k := data.Grid().K()
	X := make([][]float64, 0, len(idx)*k)
	for _, i := range idx {
		for t := 1; t <= k; t++ {
			X = append(X, featureRow(t, k, a, data.Covariates(i), dropCov))
		}
	}
	return X
}
