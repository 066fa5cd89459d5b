// Command train-forecaster fits the peak predictor on a readings CSV and
// saves the model artifact as JSON. Training uses the largest contiguous
// segment of the meter's history; series broken by gaps over 1.5 hours never
// feed lag features across the break.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"peak_forecaster/internal/forecast"
	"peak_forecaster/internal/ingest"
	"peak_forecaster/internal/model"
)

func main() {
	input := flag.String("input", "input/readings_temp.csv", "Readings CSV path")
	meterID := flag.String("meter", "", "Meter ID to train on (required)")
	output := flag.String("model", "models/peak_predictor.json", "Model artifact output path")
	limited := flag.Bool("limited", false, "Use the limited-data training variant")
	flag.Parse()

	if *meterID == "" {
		log.Fatal("no meter given — use -meter id")
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("opening input: %v", err)
	}
	parser := &ingest.ReadingsParser{}
	obs, err := parser.Parse(f)
	f.Close()
	if err != nil {
		log.Fatalf("parsing %s: %v", *input, err)
	}

	segments, err := forecast.SegmentByGaps(obs)
	if err != nil {
		log.Fatalf("segmenting: %v", err)
	}
	segment, ok := forecast.LargestSegmentForMeter(segments, *meterID)
	if !ok {
		log.Fatalf("meter %s has no contiguous segment of at least %d readings", *meterID, forecast.MinSegmentLength)
	}
	log.Printf("meter %s: training on largest contiguous segment, %d of %d readings",
		*meterID, segment.Length(), len(model.FilterMeter(obs, *meterID)))

	predictor := forecast.NewPeakPredictor()

	var summary forecast.TrainSummary
	if *limited {
		predictor.ExtractTimeIntervals(segment.Observations, *meterID)
		opts := forecast.DefaultFeatureOptions()
		opts.MeterID = *meterID
		fs, err := predictor.PrepareFeatures(segment.Observations, opts)
		if err != nil {
			log.Fatalf("building features: %v", err)
		}
		summary, err = predictor.TrainWithLimitedData(fs)
		if err != nil {
			log.Fatalf("training: %v", err)
		}
	} else {
		summary, err = predictor.Fit(segment.Observations, *meterID)
		if err != nil {
			log.Fatalf("training: %v", err)
		}
	}

	log.Printf("trained intervals: %v", summary.TrainedIntervals)
	for _, skip := range summary.SkippedIntervals {
		log.Printf("  skipped interval %d: %s (%d rows)", skip.Interval, skip.Reason, skip.Rows)
	}
	if summary.FallbackLabelRows > 0 {
		log.Printf("  %d rows labeled with the fallback peak hour", summary.FallbackLabelRows)
	}
	if !predictor.IsTrained() {
		log.Fatal("no interval had enough data — nothing to save")
	}

	data, err := predictor.Save()
	if err != nil {
		log.Fatalf("serializing model: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("creating model directory: %v", err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatalf("writing model: %v", err)
	}

	log.Printf("model saved to %s (threshold %.2f, %d intervals)", *output, predictor.Threshold(), len(predictor.Intervals()))
}
