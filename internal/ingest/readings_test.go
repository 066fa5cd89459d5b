package ingest

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_forecaster/internal/model"
)

func TestReadingsParser_WithTemperature(t *testing.T) {
	input := `time,import,meter_id,air_temperature
2024-03-01T00:00:00Z,512.4,746,-3.1
2024-03-01T01:00:00Z,498.0,746,-3.4
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "746", obs[0].MeterID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), obs[0].Time)
	assert.Equal(t, 512.4, obs[0].Import)
	assert.True(t, obs[0].HasTemperature)
	assert.Equal(t, -3.1, obs[0].AirTemperature)
}

func TestReadingsParser_WithoutTemperatureColumn(t *testing.T) {
	input := `time,import,meter_id
2024-03-01T00:00:00Z,512.4,746
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.False(t, obs[0].HasTemperature)
}

func TestReadingsParser_EmptyTemperatureField(t *testing.T) {
	input := `time,import,meter_id,air_temperature
2024-03-01T00:00:00Z,512.4,746,
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.False(t, obs[0].HasTemperature)
}

func TestReadingsParser_NullImportKeptAsNaN(t *testing.T) {
	input := `time,import,meter_id,air_temperature
2024-03-01T00:00:00Z,,746,1.0
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.True(t, math.IsNaN(obs[0].Import))
}

func TestReadingsParser_SkipsBadRows(t *testing.T) {
	input := `time,import,meter_id
not-a-time,512.4,746
2024-03-01T00:00:00Z,abc,746
2024-03-01T01:00:00Z,500,
2024-03-01T02:00:00Z,500,746
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 2, obs[0].Time.Hour())
}

func TestReadingsParser_RejectsWrongHeader(t *testing.T) {
	p := &ReadingsParser{}
	_, err := p.Parse(strings.NewReader("timestamp,value,meter\n"))
	assert.Error(t, err)
}

func TestReadingsParser_AcceptsSpaceSeparatedTime(t *testing.T) {
	input := `time,import,meter_id
2024-03-01 05:00:00,500,746
`
	p := &ReadingsParser{}
	obs, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 5, obs[0].Time.Hour())
}

func TestWriteObservations_RoundTrip(t *testing.T) {
	in := []model.Observation{
		{
			MeterID:        "746",
			Time:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Import:         512.4,
			AirTemperature: -3.1,
			HasTemperature: true,
		},
		{
			MeterID: "747",
			Time:    time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC),
			Import:  math.NaN(),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteObservations(&buf, in))

	p := &ReadingsParser{}
	out, err := p.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, in[0], out[0])
	assert.Equal(t, "747", out[1].MeterID)
	assert.True(t, math.IsNaN(out[1].Import))
	assert.False(t, out[1].HasTemperature)
}
