package stats

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"peak_forecaster/internal/model"
)

// ErrNoData is returned when no usable values are available.
var ErrNoData = errors.New("no values")

// Variability holds dispersion metrics for a consumption series. CoeffVar is
// NaN when the mean is zero.
type Variability struct {
	Mean     float64
	StdDev   float64
	CoeffVar float64
}

// Compute returns variability metrics over the values, ignoring NaNs.
func Compute(values []float64) (Variability, error) {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Variability{}, ErrNoData
	}

	mean := stat.Mean(clean, nil)
	std := stat.PopStdDev(clean, nil)

	cv := math.NaN()
	if mean != 0 {
		cv = std / mean
	}

	return Variability{Mean: mean, StdDev: std, CoeffVar: cv}, nil
}

// RollingPoint is the coefficient of variation over the window ending at Time.
type RollingPoint struct {
	Time     time.Time
	CoeffVar float64
}

// RollingCoeffVar computes the coefficient of variation of import over a
// sliding time window. Points whose window holds fewer than two observations
// are skipped. The input must be sorted by time.
func RollingCoeffVar(obs []model.Observation, window time.Duration) []RollingPoint {
	var points []RollingPoint
	start := 0

	var sum, sumSq float64
	count := 0

	for i, o := range obs {
		if !math.IsNaN(o.Import) {
			sum += o.Import
			sumSq += o.Import * o.Import
			count++
		}

		for obs[start].Time.Before(o.Time.Add(-window)) {
			if !math.IsNaN(obs[start].Import) {
				sum -= obs[start].Import
				sumSq -= obs[start].Import * obs[start].Import
				count--
			}
			start++
		}

		if count < 2 {
			continue
		}
		mean := sum / float64(count)
		variance := sumSq/float64(count) - mean*mean
		if variance < 0 {
			variance = 0 // float cancellation
		}
		if mean == 0 {
			continue
		}
		points = append(points, RollingPoint{
			Time:     obs[i].Time,
			CoeffVar: math.Sqrt(variance) / mean,
		})
	}

	return points
}

// MeterVariability pairs a meter with its variability metrics.
type MeterVariability struct {
	MeterID string
	Variability
}

// RankByVariability returns per-meter variability sorted by descending
// coefficient of variation. Meters with no usable values are omitted.
func RankByVariability(obs []model.Observation) []MeterVariability {
	var ranked []MeterVariability

	for meterID, series := range model.GroupByMeter(obs) {
		values := make([]float64, len(series))
		for i, o := range series {
			values[i] = o.Import
		}
		v, err := Compute(values)
		if err != nil {
			continue
		}
		ranked = append(ranked, MeterVariability{MeterID: meterID, Variability: v})
	}

	sort.Slice(ranked, func(i, j int) bool {
		ci, cj := ranked[i].CoeffVar, ranked[j].CoeffVar
		if math.IsNaN(cj) {
			return !math.IsNaN(ci)
		}
		if math.IsNaN(ci) {
			return false
		}
		if ci != cj {
			return ci > cj
		}
		return ranked[i].MeterID < ranked[j].MeterID
	})
	return ranked
}
