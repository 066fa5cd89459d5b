package store

import (
	"sort"
	"sync"
	"time"

	"peak_forecaster/internal/model"
)

// Store holds meter observations in memory, keyed by meter ID and kept sorted
// by time. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	observations map[string][]model.Observation
}

func New() *Store {
	return &Store{
		observations: make(map[string][]model.Observation),
	}
}

// Add appends observations and re-sorts each affected meter's series.
func (s *Store) Add(obs []model.Observation) {
	if len(obs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		s.observations[o.MeterID] = append(s.observations[o.MeterID], o)
	}

	seen := make(map[string]bool)
	for _, o := range obs {
		if !seen[o.MeterID] {
			seen[o.MeterID] = true
			series := s.observations[o.MeterID]
			sort.Slice(series, func(i, j int) bool {
				return series[i].Time.Before(series[j].Time)
			})
		}
	}
}

// MeterIDs returns the known meter IDs in sorted order.
func (s *Store) MeterIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.observations))
	for id := range s.observations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of observations held for a meter.
func (s *Store) Count(meterID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations[meterID])
}

// TimeRange returns the time span covered by a meter's observations.
func (s *Store) TimeRange(meterID string) (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.observations[meterID]
	if len(series) == 0 {
		return model.TimeRange{}, false
	}

	return model.TimeRange{
		Start: series[0].Time,
		End:   series[len(series)-1].Time,
	}, true
}

// GlobalTimeRange returns the union of all meters' time ranges.
func (s *Store) GlobalTimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end time.Time
	first := true

	for _, series := range s.observations {
		if len(series) == 0 {
			continue
		}
		mStart := series[0].Time
		mEnd := series[len(series)-1].Time

		if first || mStart.Before(start) {
			start = mStart
		}
		if first || mEnd.After(end) {
			end = mEnd
		}
		first = false
	}

	if first {
		return model.TimeRange{}, false
	}
	return model.TimeRange{Start: start, End: end}, true
}

// Range returns a meter's observations between start (inclusive) and end
// (exclusive).
func (s *Store) Range(meterID string, start, end time.Time) []model.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.observations[meterID]
	if len(all) == 0 {
		return nil
	}

	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Time.Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Time.Before(end)
	})

	if startIdx >= endIdx {
		return nil
	}

	result := make([]model.Observation, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result
}

// Latest returns a meter's most recent observation.
func (s *Store) Latest(meterID string) (model.Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.observations[meterID]
	if len(all) == 0 {
		return model.Observation{}, false
	}
	return all[len(all)-1], true
}

// Window splits a meter's recent history for inference: current holds the
// newest currentHours of observations, lookback holds the lookbackHours
// before them. Both slices are anchored at the newest observation.
func (s *Store) Window(meterID string, currentHours, lookbackHours int) (lookback, current []model.Observation) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.observations[meterID]
	if len(all) == 0 {
		return nil, nil
	}

	newest := all[len(all)-1].Time
	currentStart := newest.Add(-time.Duration(currentHours) * time.Hour)
	lookbackStart := currentStart.Add(-time.Duration(lookbackHours) * time.Hour)

	split := sort.Search(len(all), func(i int) bool {
		return all[i].Time.After(currentStart)
	})
	from := sort.Search(len(all), func(i int) bool {
		return all[i].Time.After(lookbackStart)
	})

	if from < split {
		lookback = make([]model.Observation, split-from)
		copy(lookback, all[from:split])
	}
	current = make([]model.Observation, len(all)-split)
	copy(current, all[split:])
	return lookback, current
}
