package ws

import (
	"log"
	"time"

	"peak_forecaster/internal/forecast"
)

// Bridge publishes monitor events to the WebSocket hub and keeps the
// handler's snapshot current so late subscribers see the latest forecast.
type Bridge struct {
	hub     *Hub
	handler *Handler
}

func NewBridge(hub *Hub, handler *Handler) *Bridge {
	return &Bridge{hub: hub, handler: handler}
}

// OnForecast broadcasts a forecast:update for a meter's prediction set.
func (b *Bridge) OnForecast(meterID string, at time.Time, threshold float64, predictions map[string]forecast.Prediction) {
	msg, err := NewEnvelope(TypeForecastUpdate, ForecastUpdate(meterID, at, threshold, predictions))
	if err != nil {
		log.Printf("Error marshaling forecast update: %v", err)
		return
	}
	if b.handler != nil {
		b.handler.SetSnapshot(msg)
	}
	b.hub.Broadcast(msg)
}

// OnAlert broadcasts a forecast:alert for an imminent peak.
func (b *Bridge) OnAlert(meterID, interval, message string, pred forecast.Prediction) {
	msg, err := NewEnvelope(TypeForecastAlert, ForecastAlertPayload{
		MeterID:    meterID,
		Interval:   interval,
		Prediction: pred,
		Message:    message,
	})
	if err != nil {
		log.Printf("Error marshaling forecast alert: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// OnState broadcasts the monitor's training status.
func (b *Bridge) OnState(state MonitorStatePayload) {
	msg, err := NewEnvelope(TypeMonitorState, state)
	if err != nil {
		log.Printf("Error marshaling monitor state: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}
