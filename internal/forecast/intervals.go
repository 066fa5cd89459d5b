package forecast

import (
	"fmt"

	"peak_forecaster/internal/model"
)

// TimeInterval is a contiguous half-open hour range [Start, End) within the
// 24-hour day.
type TimeInterval struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

func (ti TimeInterval) ContainsHour(hour int) bool {
	return hour >= ti.Start && hour < ti.End
}

// HourlyProfile holds per-hour-of-day aggregates of consumption.
type HourlyProfile struct {
	Mean [24]float64
	Max  [24]float64
}

// ComputeHourlyProfile aggregates mean and max import per hour of day.
func ComputeHourlyProfile(obs []model.Observation) HourlyProfile {
	var sums, maxs [24]float64
	var counts [24]int

	for _, o := range obs {
		h := o.Time.Hour()
		sums[h] += o.Import
		if counts[h] == 0 || o.Import > maxs[h] {
			maxs[h] = o.Import
		}
		counts[h]++
	}

	var p HourlyProfile
	for h := 0; h < 24; h++ {
		if counts[h] > 0 {
			p.Mean[h] = sums[h] / float64(counts[h])
			p.Max[h] = maxs[h]
		}
	}
	return p
}

// ExtractTimeIntervals partitions the day into intervals bounded by valley
// hours of the average consumption profile. A valley is a strict local
// minimum of the hourly mean over hours 1..22; hours 0 and 24 are always
// boundaries. With no valleys the whole day is a single interval.
func ExtractTimeIntervals(obs []model.Observation, meterID string) []TimeInterval {
	filtered := model.FilterMeter(obs, meterID)
	profile := ComputeHourlyProfile(filtered)
	return IntervalsFromProfile(profile)
}

// IntervalsFromProfile derives the interval partition from an hourly profile.
// The result always covers [0, 24) exactly.
func IntervalsFromProfile(profile HourlyProfile) []TimeInterval {
	boundaries := []int{0}
	for h := 1; h <= 22; h++ {
		if profile.Mean[h] < profile.Mean[h-1] && profile.Mean[h] < profile.Mean[h+1] {
			boundaries = append(boundaries, h)
		}
	}
	boundaries = append(boundaries, 24)

	intervals := make([]TimeInterval, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		intervals = append(intervals, TimeInterval{
			Start: boundaries[i],
			End:   boundaries[i+1],
			Label: fmt.Sprintf("Interval %d", i+1),
		})
	}
	return intervals
}

// intervalIndexForHour returns the index of the interval containing the hour,
// or -1 if none does.
func intervalIndexForHour(intervals []TimeInterval, hour int) int {
	for i, ti := range intervals {
		if ti.ContainsHour(hour) {
			return i
		}
	}
	return -1
}
