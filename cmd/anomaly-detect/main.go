// Command anomaly-detect checks hourly AMS data for null readings, negative
// readings, and missing hours, and prints a per-meter report with a
// consumption variability ranking.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"peak_forecaster/internal/anomaly"
	"peak_forecaster/internal/ingest"
	"peak_forecaster/internal/model"
	"peak_forecaster/internal/stats"
)

func main() {
	input := flag.String("input", "", "Input CSV path (required)")
	format := flag.String("format", "readings", "Input format: readings or datek")
	output := flag.String("output", "", "Optional path to save the report")
	flag.Parse()

	if *input == "" {
		log.Fatal("no input given — use -input path.csv")
	}

	var parser ingest.Parser
	switch *format {
	case "readings":
		parser = &ingest.ReadingsParser{}
	case "datek":
		parser = &ingest.DatekParser{}
	default:
		log.Fatalf("unknown format %q (want readings or datek)", *format)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("opening input: %v", err)
	}
	obs, err := parser.Parse(f)
	f.Close()
	if err != nil {
		log.Fatalf("parsing %s: %v", *input, err)
	}
	if len(obs) == 0 {
		log.Fatalf("no observations in %s", *input)
	}

	report := anomaly.Report(obs) + variabilitySection(obs)
	os.Stdout.WriteString(report)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			log.Fatalf("saving report: %v", err)
		}
		log.Printf("report saved to %s", *output)
	}
}

// variabilitySection ranks meters by import coefficient of variation, most
// volatile first.
func variabilitySection(obs []model.Observation) string {
	ranked := stats.RankByVariability(obs)
	if len(ranked) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "CONSUMPTION VARIABILITY")
	fmt.Fprintln(&b, strings.Repeat("-", 60))
	for _, mv := range ranked {
		fmt.Fprintf(&b, "Meter %s: cv=%.3f (mean %.2f, std %.2f)\n",
			mv.MeterID, mv.CoeffVar, mv.Mean, mv.StdDev)
	}
	return b.String()
}
