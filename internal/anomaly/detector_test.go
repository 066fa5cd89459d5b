package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_forecaster/internal/model"
)

func obsAt(meterID string, base time.Time, hour int, imp float64) model.Observation {
	return model.Observation{
		MeterID: meterID,
		Time:    base.Add(time.Duration(hour) * time.Hour),
		Import:  imp,
	}
}

func TestDetect_NullAndNegative(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		obsAt("m1", base, 0, 100),
		obsAt("m1", base, 1, math.NaN()),
		obsAt("m1", base, 2, -5),
		obsAt("m1", base, 3, 0), // zero is valid
	}

	anomalies := Detect(obs)
	require.Len(t, anomalies, 2)

	assert.Equal(t, TypeNullValue, anomalies[0].Type)
	assert.Equal(t, SeverityHigh, anomalies[0].Severity)
	assert.Equal(t, base.Add(time.Hour), anomalies[0].Time)

	assert.Equal(t, TypeNegativeValue, anomalies[1].Type)
	assert.Equal(t, -5.0, anomalies[1].Import)
}

func TestDetect_MissingHours(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		obsAt("m1", base, 0, 100),
		obsAt("m1", base, 1, 100),
		// hours 2 and 3 missing
		obsAt("m1", base, 4, 100),
	}

	anomalies := Detect(obs)
	require.Len(t, anomalies, 2)
	assert.Equal(t, TypeMissingHour, anomalies[0].Type)
	assert.Equal(t, SeverityMedium, anomalies[0].Severity)
	assert.Equal(t, base.Add(2*time.Hour), anomalies[0].Time)
	assert.Equal(t, base.Add(3*time.Hour), anomalies[1].Time)
}

func TestDetect_MissingHoursPerMeter(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		obsAt("m1", base, 0, 100),
		obsAt("m1", base, 2, 100),
		// m2 covers a different span; its grid is independent
		obsAt("m2", base, 10, 100),
		obsAt("m2", base, 11, 100),
	}

	anomalies := Detect(obs)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "m1", anomalies[0].MeterID)
	assert.Equal(t, base.Add(time.Hour), anomalies[0].Time)
}

func TestDetect_CleanSeries(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var obs []model.Observation
	for h := 0; h < 24; h++ {
		obs = append(obs, obsAt("m1", base, h, 100))
	}

	assert.Empty(t, Detect(obs))
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		obsAt("m1", base, 0, 100),
		obsAt("m1", base, 1, math.NaN()),
		obsAt("m1", base, 2, -1),
		obsAt("m1", base, 4, 100), // hour 3 missing
	}

	s := Summarize(obs)
	assert.Equal(t, 4, s.TotalRecords)
	assert.Equal(t, 1, s.NullValues)
	assert.Equal(t, 1, s.NegativeValues)
	assert.Equal(t, 1, s.MissingHours)
	assert.Equal(t, 5, s.ExpectedHours)

	assert.InDelta(t, 25.0, s.NullPercent(), 1e-10)
	assert.InDelta(t, 25.0, s.NegativePercent(), 1e-10)
	assert.InDelta(t, 20.0, s.MissingHoursPercent(), 1e-10)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalRecords)
	assert.Zero(t, s.NullPercent())
	assert.Zero(t, s.MissingHoursPercent())
}

func TestReport_ContainsPerMeterBreakdown(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		obsAt("m1", base, 0, math.NaN()),
		obsAt("m2", base, 0, 100),
	}

	report := Report(obs)
	assert.Contains(t, report, "ANOMALY COUNTS")
	assert.Contains(t, report, "Meter: m1")
	assert.Contains(t, report, "Meter: m2")
	assert.Contains(t, report, "Null values: 1")
}
