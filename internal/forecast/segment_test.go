package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_forecaster/internal/model"
)

// hourlySeries generates n hourly observations for one meter starting at start.
func hourlySeries(meterID string, start time.Time, n int, importAt func(i int) float64) []model.Observation {
	obs := make([]model.Observation, n)
	for i := range obs {
		obs[i] = model.Observation{
			MeterID: meterID,
			Time:    start.Add(time.Duration(i) * time.Hour),
			Import:  importAt(i),
		}
	}
	return obs
}

func flatImport(i int) float64 { return 100 }

func TestSegmentByGaps_SplitsOnTwoDayGap(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first := hourlySeries("m1", start, 96, flatImport)
	second := hourlySeries("m1", start.Add(96*time.Hour).Add(48*time.Hour), 96, flatImport)

	segments, err := SegmentByGaps(append(first, second...))
	require.NoError(t, err)
	require.Len(t, segments["m1"], 2)

	assert.Equal(t, 96, segments["m1"][0].Length())
	assert.Equal(t, 96, segments["m1"][1].Length())
}

func TestSegmentByGaps_DiscardsShortSegments(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	long := hourlySeries("m1", start, 80, flatImport)
	short := hourlySeries("m1", start.Add(200*time.Hour), 24, flatImport)

	segments, err := SegmentByGaps(append(long, short...))
	require.NoError(t, err)
	require.Len(t, segments["m1"], 1)
	assert.Equal(t, 80, segments["m1"][0].Length())
}

func TestSegmentByGaps_NoUsableData(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	short := hourlySeries("m1", start, 24, flatImport)

	_, err := SegmentByGaps(short)
	assert.ErrorIs(t, err, ErrNoUsableData)
}

func TestSegmentByGaps_PreservesOrderAndContiguity(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var obs []model.Observation
	obs = append(obs, hourlySeries("m1", start, 100, func(i int) float64 { return float64(i) })...)
	obs = append(obs, hourlySeries("m1", start.Add(150*time.Hour), 90, func(i int) float64 { return float64(1000 + i) })...)

	segments, err := SegmentByGaps(obs)
	require.NoError(t, err)

	var concatenated []model.Observation
	for _, seg := range segments["m1"] {
		for i := 1; i < seg.Length(); i++ {
			delta := seg.Observations[i].Time.Sub(seg.Observations[i-1].Time)
			assert.LessOrEqual(t, delta, GapThreshold, "segment must have no internal gap")
		}
		assert.GreaterOrEqual(t, seg.Length(), MinSegmentLength)
		concatenated = append(concatenated, seg.Observations...)
	}

	// Concatenation reproduces a subset of the input in the original order.
	prev := concatenated[0].Time
	for _, o := range concatenated[1:] {
		assert.True(t, o.Time.After(prev), "no reordering")
		prev = o.Time
	}
}

func TestSegmentByGaps_PerMeterIndependence(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m1 := hourlySeries("m1", start, 96, flatImport)
	m2 := hourlySeries("m2", start, 24, flatImport) // too short on its own

	segments, err := SegmentByGaps(append(m1, m2...))
	require.NoError(t, err)
	assert.Contains(t, segments, "m1")
	assert.NotContains(t, segments, "m2")
}

func TestLargestSegment(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var obs []model.Observation
	obs = append(obs, hourlySeries("m1", start, 80, flatImport)...)
	obs = append(obs, hourlySeries("m2", start, 120, flatImport)...)

	segments, err := SegmentByGaps(obs)
	require.NoError(t, err)

	best, ok := LargestSegment(segments)
	require.True(t, ok)
	assert.Equal(t, "m2", best.MeterID)
	assert.Equal(t, 120, best.Length())
}
