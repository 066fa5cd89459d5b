package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"peak_forecaster/internal/model"
)

// Minimum feature rows an interval needs before a model is trained for it.
const (
	MinTrainRows        = 10
	MinLimitedTrainRows = 5
)

// MinLeadMinutes is the advance-warning horizon: forecasts closer than this
// are suppressed.
const MinLeadMinutes = 30

// ErrNotTrained is returned by prediction before a successful training run.
var ErrNotTrained = errors.New("predictor is not trained")

// Reliability tags whether a prediction came from a trained model or the
// historical-average fallback.
type Reliability string

const (
	ReliabilityHigh Reliability = "high"
	ReliabilityLow  Reliability = "low"
)

// Prediction is one peak forecast for an upcoming interval.
type Prediction struct {
	PredictedAmount    float64     `json:"predicted_amount"`
	PredictedHour      float64     `json:"predicted_hour"`
	TotalPredictedPeak float64     `json:"total_predicted_peak"`
	MinutesUntilPeak   float64     `json:"minutes_until_peak"`
	IntervalStart      int         `json:"interval_start"`
	IntervalEnd        int         `json:"interval_end"`
	Reliability        Reliability `json:"reliability"`
}

// intervalModel is the trained state for one time interval: a regressor and a
// fresh scaler per target, plus the schema they were trained on.
type intervalModel struct {
	AmountModel  *GBT     `json:"amount_model"`
	TimingModel  *GBT     `json:"timing_model"`
	AmountScaler *Scaler  `json:"amount_scaler"`
	TimingScaler *Scaler  `json:"timing_scaler"`
	Features     []string `json:"features"`
}

// SkippedInterval records a per-interval training omission.
type SkippedInterval struct {
	Interval int
	Rows     int
	Reason   string
}

// TrainSummary reports what a training call did, so callers can log
// omissions without the trainer failing the run.
type TrainSummary struct {
	TrainedIntervals  []int
	SkippedIntervals  []SkippedInterval
	FallbackLabelRows int
}

// PeakPredictor forecasts the magnitude and timing of consumption peaks per
// time interval, roughly 30 minutes ahead. A predictor is untrained until a
// training call succeeds; retraining replaces the interval models wholesale.
// Fit/Predict calls must be serialized by the caller.
type PeakPredictor struct {
	intervals    []TimeInterval
	threshold    float64
	hasThreshold bool
	models       map[int]*intervalModel
	trained      bool
}

func NewPeakPredictor() *PeakPredictor {
	return &PeakPredictor{models: make(map[int]*intervalModel)}
}

// Intervals returns the day partition established at fit time.
func (p *PeakPredictor) Intervals() []TimeInterval { return p.intervals }

// Threshold returns the base-load threshold established at fit time.
func (p *PeakPredictor) Threshold() float64 { return p.threshold }

// IsTrained reports whether at least one interval has a trained model.
func (p *PeakPredictor) IsTrained() bool { return p.trained }

// ExtractTimeIntervals derives the interval partition from the observations
// (optionally one meter) and stores it for feature assignment, training, and
// inference.
func (p *PeakPredictor) ExtractTimeIntervals(obs []model.Observation, meterID string) []TimeInterval {
	p.intervals = ExtractTimeIntervals(obs, meterID)
	return p.intervals
}

// SeparateBaseLoad computes and stores the base-load threshold (median
// import), optionally restricted to one meter.
func (p *PeakPredictor) SeparateBaseLoad(obs []model.Observation, meterID string) (float64, error) {
	threshold, err := BaseLoadThreshold(obs, meterID)
	if err != nil {
		return 0, err
	}
	p.threshold = threshold
	p.hasThreshold = true
	return threshold, nil
}

// PrepareFeatures builds the feature set against the stored intervals and
// threshold. If the threshold has not been computed yet it is derived from
// the input and stored.
func (p *PeakPredictor) PrepareFeatures(obs []model.Observation, opts FeatureOptions) (FeatureSet, error) {
	threshold := math.NaN()
	if p.hasThreshold {
		threshold = p.threshold
	}
	fs, err := BuildFeatures(obs, p.intervals, threshold, opts)
	if err != nil {
		return FeatureSet{}, err
	}
	if !p.hasThreshold {
		t, err := BaseLoadThreshold(model.FilterMeter(obs, opts.MeterID), "")
		if err != nil {
			return FeatureSet{}, err
		}
		p.threshold = t
		p.hasThreshold = true
	}
	return fs, nil
}

// TrainModels fits one amount-regressor and one timing-regressor per time
// interval with at least MinTrainRows feature rows. Intervals below the
// threshold are skipped and reported, not fatal; an empty feature set is.
func (p *PeakPredictor) TrainModels(fs FeatureSet) (TrainSummary, error) {
	return p.train(fs, DefaultGBTConfig(), MinTrainRows)
}

// TrainWithLimitedData is the low-data variant: fewer rows required, simpler
// models (50 trees of depth 2).
func (p *PeakPredictor) TrainWithLimitedData(fs FeatureSet) (TrainSummary, error) {
	return p.train(fs, LimitedGBTConfig(), MinLimitedTrainRows)
}

func (p *PeakPredictor) train(fs FeatureSet, cfg GBTConfig, minRows int) (TrainSummary, error) {
	if len(fs.Rows) == 0 {
		return TrainSummary{}, fmt.Errorf("training: %w", ErrNoData)
	}

	summary := TrainSummary{FallbackLabelRows: fs.FallbackLabelRows}
	models := make(map[int]*intervalModel)

	for _, interval := range fs.intervalsPresent() {
		rows := fs.rowsForInterval(interval)
		if len(rows) < minRows {
			summary.SkippedIntervals = append(summary.SkippedIntervals, SkippedInterval{
				Interval: interval, Rows: len(rows), Reason: "not enough data",
			})
			continue
		}
		if len(fs.Schema) == 0 {
			summary.SkippedIntervals = append(summary.SkippedIntervals, SkippedInterval{
				Interval: interval, Rows: len(rows), Reason: "no lag features",
			})
			continue
		}

		X := make([][]float64, len(rows))
		yAmount := make([]float64, len(rows))
		yTiming := make([]float64, len(rows))
		for i, row := range rows {
			X[i] = row.Features
			yAmount[i] = row.PeakAmount
			yTiming[i] = row.PeakHour
		}

		amountScaler := FitScaler(X)
		amountModel := TrainGBT(amountScaler.TransformAll(X), yAmount, cfg)

		timingScaler := FitScaler(X)
		timingModel := TrainGBT(timingScaler.TransformAll(X), yTiming, cfg)

		models[interval] = &intervalModel{
			AmountModel:  amountModel,
			TimingModel:  timingModel,
			AmountScaler: amountScaler,
			TimingScaler: timingScaler,
			Features:     slices.Clone(fs.Schema),
		}
		summary.TrainedIntervals = append(summary.TrainedIntervals, interval)
	}

	// Wholesale replacement: a retrain never merges with previous models.
	p.models = models
	p.trained = len(models) > 0
	return summary, nil
}

// Fit runs the complete training pipeline: interval discovery, base-load
// decomposition, feature construction, and per-interval model training.
func (p *PeakPredictor) Fit(obs []model.Observation, meterID string) (TrainSummary, error) {
	p.ExtractTimeIntervals(obs, meterID)

	if _, err := p.SeparateBaseLoad(obs, meterID); err != nil {
		return TrainSummary{}, fmt.Errorf("base load: %w", err)
	}

	opts := DefaultFeatureOptions()
	opts.MeterID = meterID
	fs, err := p.PrepareFeatures(obs, opts)
	if err != nil {
		return TrainSummary{}, fmt.Errorf("features: %w", err)
	}

	return p.TrainModels(fs)
}

// Predict forecasts the peak for each active or upcoming interval with a
// trained model. current must hold the latest readings; its last row defines
// "now". Forecasts under MinLeadMinutes away, or whose predicted hour drifts
// outside the interval, are suppressed.
func (p *PeakPredictor) Predict(current, lookback []model.Observation) (map[string]Prediction, error) {
	if !p.trained {
		return nil, ErrNotTrained
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("predict: %w", ErrNoData)
	}

	currentTime := current[len(current)-1].Time
	currentHour := currentTime.UTC().Hour()

	combined := make([]model.Observation, 0, len(lookback)+len(current))
	combined = append(combined, lookback...)
	combined = append(combined, current...)

	fs, err := BuildFeatures(combined, p.intervals, p.threshold, DefaultFeatureOptions())
	if err != nil {
		return nil, fmt.Errorf("prediction features: %w", err)
	}

	predictions := make(map[string]Prediction)
	for idx, interval := range p.intervals {
		if currentHour >= interval.End {
			continue // already over for today
		}
		m, ok := p.models[idx]
		if !ok {
			continue
		}

		pred, ok := p.predictInterval(fs, idx, m, currentTime)
		if !ok {
			continue
		}
		pred.Reliability = ReliabilityHigh
		predictions[interval.Label] = pred
	}
	return predictions, nil
}

// predictInterval runs one interval's models on its most recent feature row
// and applies the lead-time and containment gates.
func (p *PeakPredictor) predictInterval(fs FeatureSet, idx int, m *intervalModel, currentTime time.Time) (Prediction, bool) {
	if !slices.Equal(fs.Schema, m.Features) {
		return Prediction{}, false // schema drift between train and predict data
	}
	rows := fs.rowsForInterval(idx)
	if len(rows) == 0 {
		return Prediction{}, false
	}
	latest := rows[len(rows)-1]

	amount := m.AmountModel.Predict(m.AmountScaler.Transform(latest.Features))
	hour := m.TimingModel.Predict(m.TimingScaler.Transform(latest.Features))

	interval := p.intervals[idx]
	total := p.threshold + math.Max(0, amount)
	minutes := minutesUntilHour(currentTime, hour)

	if minutes < MinLeadMinutes {
		return Prediction{}, false
	}
	if hour < float64(interval.Start) || hour >= float64(interval.End) {
		return Prediction{}, false // timing drifted outside its own interval
	}

	return Prediction{
		PredictedAmount:    amount,
		PredictedHour:      hour,
		TotalPredictedPeak: total,
		MinutesUntilPeak:   minutes,
		IntervalStart:      interval.Start,
		IntervalEnd:        interval.End,
	}, true
}

// PredictWithFallbacks is the robust variant: model-based predictions where
// possible (reliability "high"), historical per-interval averages otherwise
// (reliability "low"). It never fails for a single interval; intervals with
// no usable history at all are omitted.
func (p *PeakPredictor) PredictWithFallbacks(current, lookback []model.Observation) (map[string]Prediction, error) {
	if !p.trained {
		return nil, ErrNotTrained
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("predict: %w", ErrNoData)
	}
	if len(lookback) == 0 {
		lookback = current
	}

	currentTime := current[len(current)-1].Time
	currentHour := currentTime.UTC().Hour()

	predictions := make(map[string]Prediction)
	for idx, interval := range p.intervals {
		if currentHour > interval.End {
			continue
		}
		if _, ok := p.models[idx]; !ok {
			continue
		}

		if pred, ok := p.modelPrediction(current, lookback, idx, currentTime); ok {
			pred.Reliability = ReliabilityHigh
			predictions[interval.Label] = pred
			continue
		}

		if pred, ok := p.fallbackPrediction(lookback, idx, currentTime); ok {
			pred.Reliability = ReliabilityLow
			predictions[interval.Label] = pred
		}
	}
	return predictions, nil
}

// modelPrediction attempts the full model path with lookback depth adapted to
// the available history.
func (p *PeakPredictor) modelPrediction(current, lookback []model.Observation, idx int, currentTime time.Time) (Prediction, bool) {
	combined := make([]model.Observation, 0, len(lookback)+len(current))
	combined = append(combined, lookback...)
	combined = append(combined, current...)

	opts := FeatureOptions{
		LookbackDays: min(3, len(lookback)/24),
		LookbackWeek: len(lookback) >= 24*7,
	}
	fs, err := BuildFeatures(combined, p.intervals, p.threshold, opts)
	if err != nil {
		return Prediction{}, false
	}
	return p.predictInterval(fs, idx, p.models[idx], currentTime)
}

// fallbackPrediction substitutes naive statistics over the interval's
// historical hour range: mean import as the peak level and the arg-max hour
// as the timing.
func (p *PeakPredictor) fallbackPrediction(lookback []model.Observation, idx int, currentTime time.Time) (Prediction, bool) {
	interval := p.intervals[idx]

	var values []float64
	maxHour := -1
	maxImport := math.Inf(-1)
	for _, o := range lookback {
		h := o.Time.UTC().Hour()
		if !interval.ContainsHour(h) {
			continue
		}
		values = append(values, o.Import)
		if o.Import > maxImport {
			maxImport = o.Import
			maxHour = h
		}
	}
	if len(values) == 0 || maxHour < 0 {
		return Prediction{}, false
	}

	avgPeak := stat.Mean(values, nil)
	amount := math.Max(0, avgPeak-p.threshold)
	hour := float64(maxHour)

	minutes := minutesUntilHour(currentTime, hour)
	if minutes < MinLeadMinutes {
		return Prediction{}, false
	}

	return Prediction{
		PredictedAmount:    amount,
		PredictedHour:      hour,
		TotalPredictedPeak: p.threshold + amount,
		MinutesUntilPeak:   minutes,
		IntervalStart:      interval.Start,
		IntervalEnd:        interval.End,
	}, true
}

// minutesUntilHour computes the minutes from now to the next occurrence of
// the (possibly fractional) hour-of-day: today if still ahead, else tomorrow.
func minutesUntilHour(now time.Time, hour float64) float64 {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	at := midnight.Add(time.Duration(hour * float64(time.Hour)))
	if at.Before(u) {
		at = at.Add(24 * time.Hour)
	}
	return at.Sub(u).Minutes()
}

// savedPredictor is the JSON-serializable model artifact.
type savedPredictor struct {
	Intervals []TimeInterval         `json:"intervals"`
	Threshold float64                `json:"threshold"`
	Models    map[int]*intervalModel `json:"models"`
}

// Save serializes the trained predictor to JSON.
func (p *PeakPredictor) Save() ([]byte, error) {
	if !p.trained {
		return nil, ErrNotTrained
	}
	return json.MarshalIndent(savedPredictor{
		Intervals: p.intervals,
		Threshold: p.threshold,
		Models:    p.models,
	}, "", "  ")
}

// LoadPeakPredictor deserializes a model artifact.
func LoadPeakPredictor(data []byte) (*PeakPredictor, error) {
	var saved savedPredictor
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parsing model artifact: %w", err)
	}
	p := &PeakPredictor{
		intervals:    saved.Intervals,
		threshold:    saved.Threshold,
		hasThreshold: true,
		models:       saved.Models,
		trained:      len(saved.Models) > 0,
	}
	if p.models == nil {
		p.models = make(map[int]*intervalModel)
	}
	return p, nil
}
