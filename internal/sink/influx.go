package sink

import (
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"peak_forecaster/internal/forecast"
	"peak_forecaster/internal/model"
)

// Sink writes observations and predictions to InfluxDB v2. It is optional
// infrastructure: the monitor runs without one.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Options identify the InfluxDB instance and destination bucket.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func New(opts Options) *Sink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPI(opts.Org, opts.Bucket),
	}
}

// WriteObservation records one meter reading.
func (s *Sink) WriteObservation(o model.Observation) {
	fields := map[string]interface{}{
		"import": o.Import,
	}
	if o.HasTemperature {
		fields["air_temperature"] = o.AirTemperature
	}

	s.writeAPI.WritePoint(write.NewPoint(
		"meter_reading",
		map[string]string{"meter_id": o.MeterID},
		fields,
		o.Time,
	))
}

// WritePredictions records a prediction set generated at the given time.
func (s *Sink) WritePredictions(meterID string, at time.Time, predictions map[string]forecast.Prediction) {
	for label, p := range predictions {
		s.writeAPI.WritePoint(write.NewPoint(
			"peak_forecast",
			map[string]string{
				"meter_id":    meterID,
				"interval":    label,
				"reliability": string(p.Reliability),
			},
			map[string]interface{}{
				"predicted_amount":     p.PredictedAmount,
				"predicted_hour":       p.PredictedHour,
				"total_predicted_peak": p.TotalPredictedPeak,
				"minutes_until_peak":   p.MinutesUntilPeak,
				"interval_range":       strconv.Itoa(p.IntervalStart) + "-" + strconv.Itoa(p.IntervalEnd),
			},
			at,
		))
	}
}

// Flush blocks until buffered points are written.
func (s *Sink) Flush() {
	s.writeAPI.Flush()
}

// Close flushes and releases the client.
func (s *Sink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// Errors exposes the async write error channel for logging.
func (s *Sink) Errors() <-chan error {
	return s.writeAPI.Errors()
}
