package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"peak_forecaster/internal/model"
)

// ReadingsParser parses merged meter readings CSV.
//
// Expected format:
//
//	time,import,meter_id,air_temperature
//	2024-03-01T00:00:00Z,512.4,746,-3.1
//
// The air_temperature column is optional; when absent or empty the
// observation carries no temperature.
type ReadingsParser struct{}

func (p *ReadingsParser) Parse(r io.Reader) ([]model.Observation, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateReadingsHeader(header); err != nil {
		return nil, err
	}
	hasTemp := len(header) > 3 && strings.TrimSpace(header[3]) == "air_temperature"

	var obs []model.Observation
	lineNum := 1 // header was line 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		o, err := parseReadingsRecord(record, hasTemp, lineNum)
		if err != nil {
			// Skip unparseable rows
			continue
		}

		obs = append(obs, o)
	}

	return obs, nil
}

func validateReadingsHeader(header []string) error {
	if len(header) < 3 {
		return fmt.Errorf("expected at least 3 columns, got %d", len(header))
	}

	expected := []string{"time", "import", "meter_id"}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}

	return nil
}

func parseReadingsRecord(record []string, hasTemp bool, lineNum int) (model.Observation, error) {
	if len(record) < 3 {
		return model.Observation{}, fmt.Errorf("line %d: expected at least 3 fields, got %d", lineNum, len(record))
	}

	ts, err := parseTime(strings.TrimSpace(record[0]))
	if err != nil {
		return model.Observation{}, fmt.Errorf("line %d: parsing time: %w", lineNum, err)
	}

	imp, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		// A present-but-empty import is a null reading, kept as NaN so the
		// anomaly detector can see it.
		if strings.TrimSpace(record[1]) == "" {
			imp = math.NaN()
		} else {
			return model.Observation{}, fmt.Errorf("line %d: parsing import: %w", lineNum, err)
		}
	}

	meterID := strings.TrimSpace(record[2])
	if meterID == "" {
		return model.Observation{}, fmt.Errorf("line %d: empty meter_id", lineNum)
	}

	o := model.Observation{
		MeterID: meterID,
		Time:    ts,
		Import:  imp,
	}

	if hasTemp && len(record) > 3 {
		if temp, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64); err == nil {
			o.AirTemperature = temp
			o.HasTemperature = true
		}
	}

	return o, nil
}

// parseTime accepts RFC 3339 with or without sub-second precision.
func parseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		ts, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return ts.UTC(), nil
}
