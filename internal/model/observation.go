package model

import (
	"sort"
	"time"
)

// Observation is a single meter reading at hourly resolution.
type Observation struct {
	MeterID string
	Time    time.Time // UTC
	Import  float64   // consumption, W or kW (unit consistent within a dataset)

	// AirTemperature is only meaningful when HasTemperature is true.
	AirTemperature float64
	HasTemperature bool
}

// TimeRange is a half-open [Start, End) span.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// SortByTime sorts observations chronologically in place.
// Ties keep their relative order.
func SortByTime(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Time.Before(obs[j].Time)
	})
}

// SortByMeterTime sorts by meter ID, then chronologically.
func SortByMeterTime(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].MeterID != obs[j].MeterID {
			return obs[i].MeterID < obs[j].MeterID
		}
		return obs[i].Time.Before(obs[j].Time)
	})
}

// GroupByMeter splits observations into per-meter chronological series.
func GroupByMeter(obs []Observation) map[string][]Observation {
	byMeter := make(map[string][]Observation)
	for _, o := range obs {
		byMeter[o.MeterID] = append(byMeter[o.MeterID], o)
	}
	for _, series := range byMeter {
		SortByTime(series)
	}
	return byMeter
}

// FilterMeter returns the chronological series for one meter.
// An empty meterID returns all observations sorted by time.
func FilterMeter(obs []Observation, meterID string) []Observation {
	var out []Observation
	if meterID == "" {
		out = make([]Observation, len(obs))
		copy(out, obs)
	} else {
		for _, o := range obs {
			if o.MeterID == meterID {
				out = append(out, o)
			}
		}
	}
	SortByTime(out)
	return out
}

// MeterIDs returns the distinct meter IDs in sorted order.
func MeterIDs(obs []Observation) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, o := range obs {
		if !seen[o.MeterID] {
			seen[o.MeterID] = true
			ids = append(ids, o.MeterID)
		}
	}
	sort.Strings(ids)
	return ids
}
