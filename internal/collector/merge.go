package collector

import (
	"sort"

	"peak_forecaster/internal/model"
)

// MergeTemperature attaches air temperature to observations with a backward
// as-of merge: each observation takes the most recent temperature reading at
// or before its time. Observations older than every temperature reading keep
// no temperature. The input slice is not modified; the result is sorted by
// meter then time.
func MergeTemperature(obs []model.Observation, temps []TemperatureReading) []model.Observation {
	merged := make([]model.Observation, len(obs))
	copy(merged, obs)
	model.SortByMeterTime(merged)

	if len(temps) == 0 {
		return merged
	}

	sorted := make([]TemperatureReading, len(temps))
	copy(sorted, temps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for i := range merged {
		idx := sort.Search(len(sorted), func(j int) bool {
			return sorted[j].Time.After(merged[i].Time)
		})
		if idx == 0 {
			continue // no temperature at or before this observation
		}
		merged[i].AirTemperature = sorted[idx-1].Value
		merged[i].HasTemperature = true
	}

	return merged
}
