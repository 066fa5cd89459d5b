package ingest

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"peak_forecaster/internal/model"
)

// WriteObservations writes observations in the merged readings CSV format
// accepted by ReadingsParser. Null imports become empty fields, as do missing
// temperatures.
func WriteObservations(w io.Writer, obs []model.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "import", "meter_id", "air_temperature"}); err != nil {
		return err
	}

	for _, o := range obs {
		imp := ""
		if !math.IsNaN(o.Import) {
			imp = strconv.FormatFloat(o.Import, 'f', -1, 64)
		}
		temp := ""
		if o.HasTemperature {
			temp = strconv.FormatFloat(o.AirTemperature, 'f', -1, 64)
		}

		if err := cw.Write([]string{
			o.Time.UTC().Format(time.RFC3339),
			imp,
			o.MeterID,
			temp,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
