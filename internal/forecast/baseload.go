package forecast

import (
	"errors"
	"sort"

	"peak_forecaster/internal/model"
)

// ErrNoData means an operation received an empty observation or feature set.
var ErrNoData = errors.New("no observations")

// BaseLoadThreshold computes the base/peak boundary: the median import over
// the observation set, optionally restricted to one meter.
func BaseLoadThreshold(obs []model.Observation, meterID string) (float64, error) {
	filtered := model.FilterMeter(obs, meterID)
	if len(filtered) == 0 {
		return 0, ErrNoData
	}

	values := make([]float64, len(filtered))
	for i, o := range filtered {
		values[i] = o.Import
	}
	return median(values), nil
}

// median is the sample median: the middle value for odd n, the mean of the
// two middle values for even n.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// PeakAmount is consumption above the base-load threshold, floored at zero.
func PeakAmount(importValue, threshold float64) float64 {
	if importValue > threshold {
		return importValue - threshold
	}
	return 0
}

// IsPeak reports whether a reading is above the base-load threshold.
func IsPeak(importValue, threshold float64) bool {
	return importValue > threshold
}
