package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"peak_forecaster/internal/model"
)

// Type classifies a data quality finding in hourly AMS data.
type Type string

const (
	TypeNullValue     Type = "null_value"
	TypeNegativeValue Type = "negative_value"
	TypeMissingHour   Type = "missing_hour"
)

// Severity of a finding. Null and negative readings are high; a missing hour
// is medium.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Anomaly is one flagged reading or gap.
type Anomaly struct {
	MeterID  string
	Time     time.Time
	Type     Type
	Severity Severity
	Import   float64 // NaN for nulls and missing hours
}

// Summary aggregates anomaly counts over a set of observations.
type Summary struct {
	TotalRecords   int
	NullValues     int
	NegativeValues int
	MissingHours   int
	ExpectedHours  int
}

func (s Summary) NullPercent() float64 {
	return percent(s.NullValues, s.TotalRecords)
}

func (s Summary) NegativePercent() float64 {
	return percent(s.NegativeValues, s.TotalRecords)
}

func (s Summary) MissingHoursPercent() float64 {
	return percent(s.MissingHours, s.ExpectedHours)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Detect flags null imports, negative imports, and missing hours against the
// expected hourly grid of each meter. Results are sorted by meter then time.
func Detect(obs []model.Observation) []Anomaly {
	var anomalies []Anomaly

	for _, o := range obs {
		switch {
		case math.IsNaN(o.Import):
			anomalies = append(anomalies, Anomaly{
				MeterID: o.MeterID, Time: o.Time,
				Type: TypeNullValue, Severity: SeverityHigh,
				Import: math.NaN(),
			})
		case o.Import < 0:
			anomalies = append(anomalies, Anomaly{
				MeterID: o.MeterID, Time: o.Time,
				Type: TypeNegativeValue, Severity: SeverityHigh,
				Import: o.Import,
			})
		}
	}

	for meterID, series := range model.GroupByMeter(obs) {
		for _, missing := range missingHours(series) {
			anomalies = append(anomalies, Anomaly{
				MeterID: meterID, Time: missing,
				Type: TypeMissingHour, Severity: SeverityMedium,
				Import: math.NaN(),
			})
		}
	}

	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].MeterID != anomalies[j].MeterID {
			return anomalies[i].MeterID < anomalies[j].MeterID
		}
		return anomalies[i].Time.Before(anomalies[j].Time)
	})
	return anomalies
}

// missingHours returns hours absent from a meter's expected hourly grid,
// which spans floor(first) to floor(last) inclusive.
func missingHours(series []model.Observation) []time.Time {
	if len(series) == 0 {
		return nil
	}

	present := make(map[time.Time]bool, len(series))
	first := series[0].Time.UTC().Truncate(time.Hour)
	last := first
	for _, o := range series {
		h := o.Time.UTC().Truncate(time.Hour)
		present[h] = true
		if h.Before(first) {
			first = h
		}
		if h.After(last) {
			last = h
		}
	}

	var missing []time.Time
	for h := first; !h.After(last); h = h.Add(time.Hour) {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	return missing
}

// expectedHours counts grid slots across all meters.
func expectedHours(obs []model.Observation) int {
	total := 0
	for _, series := range model.GroupByMeter(obs) {
		if len(series) == 0 {
			continue
		}
		first := series[0].Time.UTC().Truncate(time.Hour)
		last := first
		for _, o := range series {
			h := o.Time.UTC().Truncate(time.Hour)
			if h.Before(first) {
				first = h
			}
			if h.After(last) {
				last = h
			}
		}
		total += int(last.Sub(first)/time.Hour) + 1
	}
	return total
}

// Summarize runs detection and aggregates the counts.
func Summarize(obs []model.Observation) Summary {
	s := Summary{
		TotalRecords:  len(obs),
		ExpectedHours: expectedHours(obs),
	}
	for _, a := range Detect(obs) {
		switch a.Type {
		case TypeNullValue:
			s.NullValues++
		case TypeNegativeValue:
			s.NegativeValues++
		case TypeMissingHour:
			s.MissingHours++
		}
	}
	return s
}

// Report renders a plain-text anomaly report with aggregate counts and a
// per-meter breakdown.
func Report(obs []model.Observation) string {
	summary := Summarize(obs)

	var b strings.Builder
	line := strings.Repeat("=", 60)
	sep := strings.Repeat("-", 60)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "AMS DATA ANOMALY DETECTION REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Total records: %d\n\n", summary.TotalRecords)

	fmt.Fprintln(&b, "ANOMALY COUNTS")
	fmt.Fprintln(&b, sep)
	fmt.Fprintf(&b, "Null values: %d (%.2f%%)\n", summary.NullValues, summary.NullPercent())
	fmt.Fprintf(&b, "Negative values: %d (%.2f%%)\n", summary.NegativeValues, summary.NegativePercent())
	fmt.Fprintf(&b, "Missing hours: %d (%.2f%%)\n", summary.MissingHours, summary.MissingHoursPercent())

	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "BREAKDOWN BY METER")
	fmt.Fprintln(&b, sep)
	for _, meterID := range model.MeterIDs(obs) {
		meterObs := model.FilterMeter(obs, meterID)
		ms := Summarize(meterObs)
		fmt.Fprintf(&b, "\nMeter: %s\n", meterID)
		fmt.Fprintf(&b, "  Total records: %d\n", ms.TotalRecords)
		fmt.Fprintf(&b, "  Null values: %d (%.2f%%)\n", ms.NullValues, ms.NullPercent())
		fmt.Fprintf(&b, "  Negative values: %d (%.2f%%)\n", ms.NegativeValues, ms.NegativePercent())
		fmt.Fprintf(&b, "  Missing hours: %d (%.2f%%)\n", ms.MissingHours, ms.MissingHoursPercent())
	}

	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, line)
	return b.String()
}
