package forecast

import (
	"math"
	"time"

	"peak_forecaster/internal/model"
)

// Lag offsets in hours. Lags are row shifts over a meter's series, so the
// input must be gap-free hourly data (one contiguous segment per meter);
// otherwise a shift silently reaches across the gap.
const (
	lagDay1 = 24
	lagDay2 = 48
	lagDay3 = 72
	lagWeek = 168
)

// FeatureOptions controls lag depth for feature construction.
type FeatureOptions struct {
	MeterID      string // empty = all meters
	LookbackDays int    // 3-day import lag included when >= 3
	LookbackWeek bool   // weekly import/temperature lag
}

func DefaultFeatureOptions() FeatureOptions {
	return FeatureOptions{LookbackDays: 3, LookbackWeek: true}
}

// FeatureRow is one hourly observation enriched with lag features and the
// training labels for its (meter, date, interval) group.
type FeatureRow struct {
	MeterID  string
	Time     time.Time
	Hour     int
	Interval int
	Import   float64

	// Features is aligned with FeatureSet.Schema.
	Features []float64

	PeakAmount float64 // label: consumption above the base-load threshold
	PeakHour   float64 // label: hour-of-day of the group's maximum import
}

// FeatureSet is the output of feature construction: an explicit, enumerated
// schema plus the surviving rows.
type FeatureSet struct {
	Schema []string
	Rows   []FeatureRow

	// FallbackLabelRows counts rows whose PeakHour came from the max-hour
	// fallback instead of the arg-max. A weak timing label; nonzero values
	// mean the primary labeling found nothing to work with.
	FallbackLabelRows int
}

// buildSchema enumerates the lag features once, up front. Temperature lags
// are only included when the data carries temperature.
func buildSchema(opts FeatureOptions, hasTemp bool) []string {
	schema := []string{"lag1_import", "lag2_import"}
	if opts.LookbackDays >= 3 {
		schema = append(schema, "lag3_import")
	}
	if opts.LookbackWeek {
		schema = append(schema, "lag7_import")
	}
	if hasTemp {
		schema = append(schema, "lag1_temp", "lag2_temp")
		if opts.LookbackWeek {
			schema = append(schema, "lag7_temp")
		}
	}
	return schema
}

// BuildFeatures assigns intervals, constructs lag features, and computes the
// peak-amount and peak-hour labels. threshold is the base-load threshold; pass
// NaN to have it computed from the input (median import). Rows missing any
// lag or interval assignment are dropped.
func BuildFeatures(obs []model.Observation, intervals []TimeInterval, threshold float64, opts FeatureOptions) (FeatureSet, error) {
	filtered := model.FilterMeter(obs, opts.MeterID)
	if len(filtered) == 0 {
		return FeatureSet{}, ErrNoData
	}

	if math.IsNaN(threshold) {
		var err error
		threshold, err = BaseLoadThreshold(filtered, "")
		if err != nil {
			return FeatureSet{}, err
		}
	}

	hasTemp := false
	for _, o := range filtered {
		if o.HasTemperature {
			hasTemp = true
			break
		}
	}
	schema := buildSchema(opts, hasTemp)

	byMeter := model.GroupByMeter(filtered)

	var rows []FeatureRow
	for _, meterID := range model.MeterIDs(filtered) {
		series := byMeter[meterID]
		rows = append(rows, buildMeterRows(meterID, series, intervals, threshold, opts, schema, hasTemp)...)
	}

	fs := FeatureSet{Schema: schema, Rows: nil}
	labeled, fallbackCount := labelPeakHours(rows)
	fs.FallbackLabelRows = fallbackCount

	// Drop rows with any missing lag feature or missing label.
	for _, row := range labeled {
		if math.IsNaN(row.PeakHour) || math.IsNaN(row.PeakAmount) {
			continue
		}
		ok := true
		for _, v := range row.Features {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			fs.Rows = append(fs.Rows, row)
		}
	}
	return fs, nil
}

// buildMeterRows computes interval assignment and row-shift lags for one
// meter's chronological series. Missing lags are NaN and filtered later.
func buildMeterRows(meterID string, series []model.Observation, intervals []TimeInterval, threshold float64, opts FeatureOptions, schema []string, hasTemp bool) []FeatureRow {
	// Interval assignment first; unassigned rows are dropped before the
	// shift, matching the original pipeline. With full-day interval coverage
	// nothing is dropped here.
	kept := make([]model.Observation, 0, len(series))
	ivals := make([]int, 0, len(series))
	for _, o := range series {
		idx := intervalIndexForHour(intervals, o.Time.UTC().Hour())
		if idx < 0 {
			continue
		}
		kept = append(kept, o)
		ivals = append(ivals, idx)
	}

	lagImport := func(i, offset int) float64 {
		j := i - offset
		if j < 0 {
			return math.NaN()
		}
		return kept[j].Import
	}
	lagTemp := func(i, offset int) float64 {
		j := i - offset
		if j < 0 || !kept[j].HasTemperature {
			return math.NaN()
		}
		return kept[j].AirTemperature
	}

	rows := make([]FeatureRow, 0, len(kept))
	for i, o := range kept {
		features := make([]float64, 0, len(schema))
		features = append(features, lagImport(i, lagDay1), lagImport(i, lagDay2))
		if opts.LookbackDays >= 3 {
			features = append(features, lagImport(i, lagDay3))
		}
		if opts.LookbackWeek {
			features = append(features, lagImport(i, lagWeek))
		}
		if hasTemp {
			features = append(features, lagTemp(i, lagDay1), lagTemp(i, lagDay2))
			if opts.LookbackWeek {
				features = append(features, lagTemp(i, lagWeek))
			}
		}

		rows = append(rows, FeatureRow{
			MeterID:    meterID,
			Time:       o.Time,
			Hour:       o.Time.UTC().Hour(),
			Interval:   ivals[i],
			Import:     o.Import,
			Features:   features,
			PeakAmount: PeakAmount(o.Import, threshold),
			PeakHour:   math.NaN(),
		})
	}
	return rows
}

type groupKey struct {
	meterID  string
	date     string // calendar date, UTC
	interval int
}

// labelPeakHours sets PeakHour per (meter, date, interval) group as the hour
// of the row with maximum import. If no group yields a valid label, every
// group falls back to its maximum hour value, a deliberately weak timing
// approximation.
func labelPeakHours(rows []FeatureRow) ([]FeatureRow, int) {
	peakHour := make(map[groupKey]float64)
	maxImport := make(map[groupKey]float64)
	maxHour := make(map[groupKey]int)

	for _, row := range rows {
		key := groupKey{row.MeterID, row.Time.UTC().Format("2006-01-02"), row.Interval}
		if !math.IsNaN(row.Import) {
			if v, ok := maxImport[key]; !ok || row.Import > v {
				maxImport[key] = row.Import
				peakHour[key] = float64(row.Hour)
			}
		}
		if h, ok := maxHour[key]; !ok || row.Hour > h {
			maxHour[key] = row.Hour
		}
	}

	fallback := len(peakHour) == 0
	fallbackCount := 0
	for i := range rows {
		key := groupKey{rows[i].MeterID, rows[i].Time.UTC().Format("2006-01-02"), rows[i].Interval}
		if h, ok := peakHour[key]; ok && !fallback {
			rows[i].PeakHour = h
		} else {
			rows[i].PeakHour = float64(maxHour[key])
			fallbackCount++
		}
	}
	return rows, fallbackCount
}

// rowsForInterval returns the subset of rows assigned to one interval,
// preserving order.
func (fs FeatureSet) rowsForInterval(interval int) []FeatureRow {
	var out []FeatureRow
	for _, row := range fs.Rows {
		if row.Interval == interval {
			out = append(out, row)
		}
	}
	return out
}

// intervalsPresent lists the distinct interval indices in row order of first
// appearance.
func (fs FeatureSet) intervalsPresent() []int {
	seen := make(map[int]bool)
	var out []int
	for _, row := range fs.Rows {
		if !seen[row.Interval] {
			seen[row.Interval] = true
			out = append(out, row.Interval)
		}
	}
	return out
}
