package ingest

import (
	"io"

	"peak_forecaster/internal/model"
)

// Parser reads meter data from a source and returns observations.
type Parser interface {
	Parse(r io.Reader) ([]model.Observation, error)
}
