// Command fetch-readings pulls hourly meter data from the Stromme API (or
// building energy data from the Energinet portal) and maintains a merged
// readings CSV. Reruns are incremental: fetching resumes from the newest
// stored timestamp with a one-hour overlap.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"peak_forecaster/internal/collector"
	"peak_forecaster/internal/config"
	"peak_forecaster/internal/ingest"
	"peak_forecaster/internal/model"
)

func main() {
	configPath := flag.String("config", "", "Config file path (overrides CONFIG_PATH)")
	source := flag.String("source", "stromme", "Data source: stromme or energinet")
	meters := flag.String("meters", "", "Comma-separated meter IDs, or unit IDs for energinet (required)")
	startStr := flag.String("start", "", "First-run fetch start, RFC 3339 (default: 30 days ago)")
	output := flag.String("output", "input/readings.csv", "Output CSV path")
	flag.Parse()

	config.LoadDotEnv(".env")

	if *meters == "" {
		log.Fatal("no meters given — use -meters id1,id2")
	}
	meterIDs := strings.Split(*meters, ",")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var fetchMeter func(meterID string, start time.Time) ([]model.Observation, error)
	switch *source {
	case "stromme":
		client, err := collector.NewStrommeClient(cfg)
		if err != nil {
			log.Fatalf("creating stromme client: %v", err)
		}
		fetchMeter = client.HourlyHistory
	case "energinet":
		client, err := collector.NewEnerginetClient(cfg)
		if err != nil {
			log.Fatalf("creating energinet client: %v", err)
		}
		fetchMeter = func(unitID string, start time.Time) ([]model.Observation, error) {
			return fetchEnerginet(client, unitID, start)
		}
	default:
		log.Fatalf("unknown source %q (want stromme or energinet)", *source)
	}

	existing, latest := loadExisting(*output)

	var start time.Time
	switch {
	case !latest.IsZero():
		start = latest.Add(-time.Hour)
		log.Printf("resuming from %s (latest timestamp minus 1h overlap)", start.Format(time.RFC3339))
	case *startStr != "":
		start, err = time.Parse(time.RFC3339, *startStr)
		if err != nil {
			log.Fatalf("parsing -start: %v", err)
		}
	default:
		start = time.Now().UTC().AddDate(0, 0, -30)
		log.Printf("first run — fetching last 30 days from %s", start.Format(time.RFC3339))
	}

	var fetched []model.Observation
	for _, meterID := range meterIDs {
		meterID = strings.TrimSpace(meterID)
		obs, err := fetchMeter(meterID, start)
		if err != nil {
			log.Fatalf("fetching meter %s: %v", meterID, err)
		}
		log.Printf("  meter %s: %d readings", meterID, len(obs))
		fetched = append(fetched, obs...)
	}

	merged := mergeObservations(existing, fetched)

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("creating output: %v", err)
	}
	defer f.Close()
	if err := ingest.WriteObservations(f, merged); err != nil {
		log.Fatalf("writing CSV: %v", err)
	}

	log.Printf("wrote %d readings to %s (was %d, fetched %d new)", len(merged), *output, len(existing), len(fetched))
}

// fetchEnerginet resolves the unit's energy datasource via drilldown and
// converts its hourly values to observations keyed by unit ID.
func fetchEnerginet(client *collector.EnerginetClient, unitID string, start time.Time) ([]model.Observation, error) {
	units, err := client.Subunits(unitID)
	if err != nil {
		return nil, err
	}

	link := ""
	for _, u := range units {
		if u.UnitID == unitID && u.EnergyLink != "" {
			link = u.EnergyLink
			break
		}
	}
	if link == "" {
		for _, u := range units {
			if u.EnergyLink != "" {
				link = u.EnergyLink
				break
			}
		}
	}
	if link == "" {
		return nil, fmt.Errorf("unit %s has no energy datasource", unitID)
	}

	values, err := client.EnergyValues(link, start, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	obs := make([]model.Observation, len(values))
	for i, v := range values {
		obs[i] = model.Observation{MeterID: unitID, Time: v.Start.UTC(), Import: v.Value}
	}
	return obs, nil
}

func loadExisting(path string) ([]model.Observation, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}
	}
	defer f.Close()

	parser := &ingest.ReadingsParser{}
	obs, err := parser.Parse(f)
	if err != nil {
		log.Printf("ignoring unreadable existing file %s: %v", path, err)
		return nil, time.Time{}
	}

	var latest time.Time
	for _, o := range obs {
		if o.Time.After(latest) {
			latest = o.Time
		}
	}
	return obs, latest
}

// mergeObservations deduplicates by (meter, time); newly fetched readings win.
func mergeObservations(existing, fetched []model.Observation) []model.Observation {
	type key struct {
		meterID string
		ts      int64
	}

	seen := make(map[key]model.Observation, len(existing)+len(fetched))
	for _, o := range existing {
		seen[key{o.MeterID, o.Time.Unix()}] = o
	}
	for _, o := range fetched {
		seen[key{o.MeterID, o.Time.Unix()}] = o
	}

	merged := make([]model.Observation, 0, len(seen))
	for _, o := range seen {
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].MeterID != merged[j].MeterID {
			return merged[i].MeterID < merged[j].MeterID
		}
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged
}
