package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"peak_forecaster/internal/model"
)

// DatekParser parses raw Datek AMS exports: semicolon-separated CSV with the
// meter's short register names.
//
// Expected format:
//
//	time;a;an;rp;rn;i1;i2;i3;u1;u2;u3;meter_id
//	2024-03-01T00:00:00Z;512;0;14;0;2.1;2.0;2.2;231;230;232;746
//
// Only the active power register (a) and meter ID are kept; the reactive,
// current, and voltage registers are ignored.
type DatekParser struct{}

func (p *DatekParser) Parse(r io.Reader) ([]model.Observation, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, col := range header {
		cols[strings.TrimSpace(col)] = i
	}
	for _, required := range []string{"time", "a", "meter_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	timeIdx := cols["time"]
	powerIdx := cols["a"]
	meterIdx := cols["meter_id"]

	var obs []model.Observation
	lineNum := 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		if len(record) <= timeIdx || len(record) <= powerIdx || len(record) <= meterIdx {
			continue
		}

		ts, err := parseTime(strings.TrimSpace(record[timeIdx]))
		if err != nil {
			continue
		}

		meterID := strings.TrimSpace(record[meterIdx])
		if meterID == "" {
			continue
		}

		raw := strings.TrimSpace(record[powerIdx])
		imp := math.NaN()
		if raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			imp = v
		}

		obs = append(obs, model.Observation{
			MeterID: meterID,
			Time:    ts,
			Import:  imp,
		})
	}

	return obs, nil
}
