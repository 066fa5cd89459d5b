// Command merge-temperature enriches a readings CSV with air temperature
// from the MET Frost API using a backward as-of merge.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"peak_forecaster/internal/collector"
	"peak_forecaster/internal/config"
	"peak_forecaster/internal/ingest"
)

func main() {
	configPath := flag.String("config", "", "Config file path (overrides CONFIG_PATH)")
	input := flag.String("input", "input/readings.csv", "Readings CSV path")
	station := flag.String("station", "SN18700", "Frost weather station ID")
	output := flag.String("output", "input/readings_temp.csv", "Output CSV path")
	flag.Parse()

	config.LoadDotEnv(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
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
	if len(obs) == 0 {
		log.Fatalf("no readings in %s", *input)
	}

	start, end := obs[0].Time, obs[0].Time
	for _, o := range obs {
		if o.Time.Before(start) {
			start = o.Time
		}
		if o.Time.After(end) {
			end = o.Time
		}
	}

	client, err := collector.NewFrostClient(cfg)
	if err != nil {
		log.Fatalf("creating frost client: %v", err)
	}

	// One extra hour on each side so boundary readings find a match.
	temps, err := client.Temperatures(*station, start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		log.Fatalf("fetching temperatures: %v", err)
	}
	log.Printf("fetched %d temperature readings for station %s", len(temps), *station)

	merged := collector.MergeTemperature(obs, temps)

	out, err := os.Create(*output)
	if err != nil {
		log.Fatalf("creating output: %v", err)
	}
	defer out.Close()
	if err := ingest.WriteObservations(out, merged); err != nil {
		log.Fatalf("writing CSV: %v", err)
	}

	withTemp := 0
	for _, o := range merged {
		if o.HasTemperature {
			withTemp++
		}
	}
	log.Printf("wrote %d readings to %s (%d with temperature)", len(merged), *output, withTemp)
}
