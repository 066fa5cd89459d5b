package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_forecaster/internal/forecast"
)

// dialHandler sets up a test server with the handler and returns a WS connection.
func dialHandler(t *testing.T, handler *Handler) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

// readJSON reads the next JSON message from the connection.
func readJSON(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func samplePredictions() map[string]forecast.Prediction {
	return map[string]forecast.Prediction{
		"Interval 2": {
			PredictedAmount:    25.5,
			PredictedHour:      18,
			TotalPredictedPeak: 75.5,
			MinutesUntilPeak:   60,
			IntervalStart:      4,
			IntervalEnd:        24,
			Reliability:        forecast.ReliabilityHigh,
		},
	}
}

func TestHandler_BroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	// Wait for registration before broadcasting.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	bridge := NewBridge(hub, handler)
	bridge.OnForecast("746", time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC), 50, samplePredictions())

	env := readJSON(t, conn)
	assert.Equal(t, TypeForecastUpdate, env.Type)

	var payload ForecastUpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "746", payload.MeterID)
	assert.Equal(t, 50.0, payload.Threshold)
	assert.Equal(t, forecast.ReliabilityHigh, payload.Predictions["Interval 2"].Reliability)
}

func TestHandler_LateSubscriberGetsSnapshot(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)
	bridge := NewBridge(hub, handler)

	// Forecast published before any client connects.
	bridge.OnForecast("746", time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC), 50, samplePredictions())

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	env := readJSON(t, conn)
	assert.Equal(t, TypeForecastUpdate, env.Type)
}

func TestHandler_ClientMessagesIgnored(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Anything the client sends is drained without closing the connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	NewBridge(hub, handler).OnAlert("746", "Interval 2", "peak in 45 minutes", samplePredictions()["Interval 2"])
	env := readJSON(t, conn)
	assert.Equal(t, TypeForecastAlert, env.Type)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	conn, cleanup := dialHandler(t, handler)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	cleanup()
}

func TestBridge_OnState(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	NewBridge(hub, handler).OnState(MonitorStatePayload{
		MeterID:      "746",
		Trained:      true,
		Observations: 720,
	})

	env := readJSON(t, conn)
	require.Equal(t, TypeMonitorState, env.Type)

	var payload MonitorStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.True(t, payload.Trained)
	assert.Equal(t, 720, payload.Observations)
}
