package forecast

import (
	"errors"
	"time"

	"peak_forecaster/internal/model"
)

const (
	// GapThreshold is the largest spacing between consecutive readings that
	// still counts as contiguous.
	GapThreshold = 90 * time.Minute

	// MinSegmentLength is the minimum usable segment size: 3 days of hourly rows.
	MinSegmentLength = 72
)

// ErrNoUsableData means no meter has a contiguous segment long enough to train on.
var ErrNoUsableData = errors.New("no usable data segment for any meter")

// Segment is a maximal gap-free run of one meter's chronological observations.
type Segment struct {
	MeterID      string
	Observations []model.Observation
}

func (s Segment) Length() int { return len(s.Observations) }

func (s Segment) Range() model.TimeRange {
	if len(s.Observations) == 0 {
		return model.TimeRange{}
	}
	return model.TimeRange{
		Start: s.Observations[0].Time,
		End:   s.Observations[len(s.Observations)-1].Time,
	}
}

// SegmentByGaps splits each meter's series into maximal contiguous segments
// and keeps only those with at least MinSegmentLength rows. Meters with no
// surviving segment are absent from the result. Returns ErrNoUsableData when
// the result would be empty.
func SegmentByGaps(obs []model.Observation) (map[string][]Segment, error) {
	byMeter := model.GroupByMeter(obs)

	segments := make(map[string][]Segment)
	for meterID, series := range byMeter {
		var kept []Segment
		for _, seg := range splitSeries(meterID, series) {
			if seg.Length() >= MinSegmentLength {
				kept = append(kept, seg)
			}
		}
		if len(kept) > 0 {
			segments[meterID] = kept
		}
	}

	if len(segments) == 0 {
		return nil, ErrNoUsableData
	}
	return segments, nil
}

// splitSeries cuts one sorted series at every gap larger than GapThreshold.
func splitSeries(meterID string, series []model.Observation) []Segment {
	if len(series) == 0 {
		return nil
	}

	var segments []Segment
	start := 0
	for i := 1; i < len(series); i++ {
		if series[i].Time.Sub(series[i-1].Time) > GapThreshold {
			segments = append(segments, Segment{MeterID: meterID, Observations: series[start:i]})
			start = i
		}
	}
	segments = append(segments, Segment{MeterID: meterID, Observations: series[start:]})
	return segments
}

// LargestSegment returns the longest usable segment across all meters.
func LargestSegment(segments map[string][]Segment) (Segment, bool) {
	var best Segment
	found := false
	for _, segs := range segments {
		for _, seg := range segs {
			if !found || seg.Length() > best.Length() {
				best = seg
				found = true
			}
		}
	}
	return best, found
}

// LargestSegmentForMeter returns the meter's longest usable segment.
func LargestSegmentForMeter(segments map[string][]Segment, meterID string) (Segment, bool) {
	var best Segment
	found := false
	for _, seg := range segments[meterID] {
		if !found || seg.Length() > best.Length() {
			best = seg
			found = true
		}
	}
	return best, found
}
