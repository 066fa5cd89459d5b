package ws

import (
	"encoding/json"
	"time"

	"peak_forecaster/internal/forecast"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Server -> Client
	TypeForecastUpdate = "forecast:update"
	TypeForecastAlert  = "forecast:alert"
	TypeMonitorState   = "monitor:state"
)

// ForecastUpdatePayload carries the latest per-interval predictions for a
// meter.
type ForecastUpdatePayload struct {
	MeterID     string                         `json:"meter_id"`
	GeneratedAt string                         `json:"generated_at"`
	Threshold   float64                        `json:"threshold"`
	Predictions map[string]forecast.Prediction `json:"predictions"`
}

// ForecastAlertPayload flags one imminent peak.
type ForecastAlertPayload struct {
	MeterID    string              `json:"meter_id"`
	Interval   string              `json:"interval"`
	Prediction forecast.Prediction `json:"prediction"`
	Message    string              `json:"message"`
}

// MonitorStatePayload reports the monitor loop's training status.
type MonitorStatePayload struct {
	MeterID      string `json:"meter_id"`
	Trained      bool   `json:"trained"`
	Observations int    `json:"observations"`
	LastRefit    string `json:"last_refit,omitempty"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// ForecastUpdate builds the forecast:update payload for a prediction set.
func ForecastUpdate(meterID string, at time.Time, threshold float64, predictions map[string]forecast.Prediction) ForecastUpdatePayload {
	return ForecastUpdatePayload{
		MeterID:     meterID,
		GeneratedAt: at.UTC().Format(time.RFC3339),
		Threshold:   threshold,
		Predictions: predictions,
	}
}
