// Command peak-monitor runs the live forecasting loop: it keeps a meter's
// history in memory, refits the peak predictor on a schedule, and publishes
// predictions over WebSocket. Alerts fire when a predicted peak is inside the
// alert window. Fresh readings can be polled from the Stromme API, and both
// readings and predictions can be mirrored to InfluxDB.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"peak_forecaster/internal/collector"
	"peak_forecaster/internal/config"
	"peak_forecaster/internal/forecast"
	"peak_forecaster/internal/ingest"
	"peak_forecaster/internal/model"
	"peak_forecaster/internal/sink"
	"peak_forecaster/internal/store"
	"peak_forecaster/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Config file path (overrides CONFIG_PATH)")
	input := flag.String("input", "input/readings_temp.csv", "Seed readings CSV path")
	meterID := flag.String("meter", "", "Meter ID to monitor (required)")
	modelPath := flag.String("model", "", "Saved model artifact (default: fit from seed data)")
	listen := flag.String("listen", ":8080", "WebSocket listen address (empty disables)")
	fetch := flag.Bool("fetch", false, "Poll the Stromme API for fresh readings")
	every := flag.Duration("every", time.Hour, "Prediction cadence")
	refitEvery := flag.Duration("refit", 24*time.Hour, "Refit cadence")
	alertMinutes := flag.Float64("alert-minutes", 45, "Alert when a peak is predicted within this many minutes")
	influxURL := flag.String("influx-url", "", "InfluxDB URL (empty disables)")
	influxToken := flag.String("influx-token", "", "InfluxDB token")
	influxOrg := flag.String("influx-org", "", "InfluxDB organization")
	influxBucket := flag.String("influx-bucket", "meters", "InfluxDB bucket")
	flag.Parse()

	config.LoadDotEnv(".env")

	if *meterID == "" {
		log.Fatal("no meter given — use -meter id")
	}

	st := store.New()
	if err := seedStore(st, *input); err != nil {
		log.Fatalf("seeding store: %v", err)
	}
	log.Printf("meter %s: %d seed readings", *meterID, st.Count(*meterID))

	var client *collector.StrommeClient
	if *fetch {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		client, err = collector.NewStrommeClient(cfg)
		if err != nil {
			log.Fatalf("creating stromme client: %v", err)
		}
	}

	var dataSink *sink.Sink
	if *influxURL != "" {
		dataSink = sink.New(sink.Options{
			URL:    *influxURL,
			Token:  *influxToken,
			Org:    *influxOrg,
			Bucket: *influxBucket,
		})
		defer dataSink.Close()
		go func() {
			for err := range dataSink.Errors() {
				log.Printf("Error writing to InfluxDB: %v", err)
			}
		}()
	}

	var bridge *ws.Bridge
	if *listen != "" {
		hub := ws.NewHub()
		handler := ws.NewHandler(hub)
		bridge = ws.NewBridge(hub, handler)

		mux := http.NewServeMux()
		mux.Handle("/ws", handler)
		go func() {
			log.Printf("WebSocket server listening on %s", *listen)
			if err := http.ListenAndServe(*listen, mux); err != nil {
				log.Fatalf("ws server: %v", err)
			}
		}()
	}

	predictor, err := loadOrFit(st, *meterID, *modelPath)
	if err != nil {
		log.Fatalf("preparing predictor: %v", err)
	}
	lastRefit := time.Now().UTC()
	publishState(bridge, *meterID, st, predictor, lastRefit)

	predict(st, *meterID, predictor, bridge, dataSink, *alertMinutes)

	predictTicker := time.NewTicker(*every)
	refitTicker := time.NewTicker(*refitEvery)
	defer predictTicker.Stop()
	defer refitTicker.Stop()

	for {
		select {
		case <-predictTicker.C:
			if client != nil {
				pollReadings(st, client, *meterID, dataSink)
			}
			predict(st, *meterID, predictor, bridge, dataSink, *alertMinutes)

		case <-refitTicker.C:
			refitted, err := fit(st, *meterID)
			if err != nil {
				log.Printf("Error refitting, keeping previous model: %v", err)
				continue
			}
			predictor = refitted
			lastRefit = time.Now().UTC()
			log.Printf("refit complete — threshold %.2f, %d intervals", predictor.Threshold(), len(predictor.Intervals()))
			publishState(bridge, *meterID, st, predictor, lastRefit)
		}
	}
}

func seedStore(st *store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	parser := &ingest.ReadingsParser{}
	obs, err := parser.Parse(f)
	if err != nil {
		return err
	}
	st.Add(obs)
	return nil
}

// loadOrFit restores a saved artifact when one is given, otherwise fits on
// the seed data's largest contiguous segment.
func loadOrFit(st *store.Store, meterID, modelPath string) (*forecast.PeakPredictor, error) {
	if modelPath != "" {
		data, err := os.ReadFile(modelPath)
		if err != nil {
			return nil, err
		}
		predictor, err := forecast.LoadPeakPredictor(data)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded model from %s (threshold %.2f, %d intervals)", modelPath, predictor.Threshold(), len(predictor.Intervals()))
		return predictor, nil
	}
	return fit(st, meterID)
}

func fit(st *store.Store, meterID string) (*forecast.PeakPredictor, error) {
	obs := allObservations(st, meterID)
	segments, err := forecast.SegmentByGaps(obs)
	if err != nil {
		return nil, err
	}
	segment, ok := forecast.LargestSegmentForMeter(segments, meterID)
	if !ok {
		return nil, fmt.Errorf("meter %s has no contiguous segment of at least %d readings", meterID, forecast.MinSegmentLength)
	}

	predictor := forecast.NewPeakPredictor()
	summary, err := predictor.Fit(segment.Observations, meterID)
	if err != nil {
		return nil, err
	}
	if !predictor.IsTrained() {
		return nil, fmt.Errorf("no interval had enough data")
	}
	log.Printf("trained on %d readings, intervals %v", segment.Length(), summary.TrainedIntervals)
	return predictor, nil
}

func allObservations(st *store.Store, meterID string) []model.Observation {
	tr, ok := st.TimeRange(meterID)
	if !ok {
		return nil
	}
	return st.Range(meterID, tr.Start, tr.End.Add(time.Second))
}

func pollReadings(st *store.Store, client *collector.StrommeClient, meterID string, dataSink *sink.Sink) {
	latest, ok := st.Latest(meterID)
	start := time.Now().UTC().AddDate(0, 0, -1)
	if ok {
		// One hour of overlap covers readings revised upstream.
		start = latest.Time.Add(-time.Hour)
	}

	obs, err := client.HourlyHistory(meterID, start)
	if err != nil {
		log.Printf("Error polling meter %s: %v", meterID, err)
		return
	}

	var fresh []model.Observation
	for _, o := range obs {
		if !ok || o.Time.After(latest.Time) {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		return
	}

	st.Add(fresh)
	if dataSink != nil {
		for _, o := range fresh {
			dataSink.WriteObservation(o)
		}
	}
	log.Printf("meter %s: %d new readings, %d total", meterID, len(fresh), st.Count(meterID))
}

func predict(st *store.Store, meterID string, predictor *forecast.PeakPredictor, bridge *ws.Bridge, dataSink *sink.Sink, alertMinutes float64) {
	lookback, current := st.Window(meterID, 24, 7*24)
	if len(current) == 0 {
		log.Printf("meter %s: no current readings to predict from", meterID)
		return
	}

	predictions, err := predictor.PredictWithFallbacks(current, lookback)
	if err != nil {
		log.Printf("Error predicting for meter %s: %v", meterID, err)
		return
	}

	now := time.Now().UTC()
	for label, p := range predictions {
		log.Printf("  %s: peak %.2f at hour %.1f in %.0f min (%s)",
			label, p.TotalPredictedPeak, p.PredictedHour, p.MinutesUntilPeak, p.Reliability)

		if p.MinutesUntilPeak > 0 && p.MinutesUntilPeak <= alertMinutes && bridge != nil {
			msg := fmt.Sprintf("Peak of %.2f predicted in %.0f minutes", p.TotalPredictedPeak, p.MinutesUntilPeak)
			bridge.OnAlert(meterID, label, msg, p)
		}
	}

	if bridge != nil {
		bridge.OnForecast(meterID, now, predictor.Threshold(), predictions)
	}
	if dataSink != nil && len(predictions) > 0 {
		dataSink.WritePredictions(meterID, now, predictions)
	}
}

func publishState(bridge *ws.Bridge, meterID string, st *store.Store, predictor *forecast.PeakPredictor, lastRefit time.Time) {
	if bridge == nil {
		return
	}
	bridge.OnState(ws.MonitorStatePayload{
		MeterID:      meterID,
		Trained:      predictor.IsTrained(),
		Observations: st.Count(meterID),
		LastRefit:    lastRefit.Format(time.RFC3339),
	})
}
