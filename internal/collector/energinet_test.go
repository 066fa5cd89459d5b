package collector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_forecaster/internal/config"
)

func energinetTestConfig(apiURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Energinet.APIURL = apiURL
	cfg.Energinet.BearerToken = "test-bearer"
	cfg.Energinet.AcceptLanguage = "no"
	cfg.DataCollection.ChunkSizeDays = 7
	return cfg
}

func TestEnerginetClient_SubunitsDrilldown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/unit/root", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
		assert.Equal(t, "no", r.Header.Get("Accept-Language"))
		fmt.Fprint(w, `[
			{
				"unit_id": "root",
				"name": "Campus",
				"datasources": [],
				"links": {"drilldown": {"href": "/api/unit/b1"}}
			}
		]`)
	})
	mux.HandleFunc("/api/unit/b1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{
				"unit_id": "b1",
				"name": "Building 1",
				"datasources": [
					{"label": "Energy", "links": {"data": {"href": "/api/data/b1/energy"}}},
					{"label": "Water", "links": {"data": {"href": "/api/data/b1/water"}}}
				],
				"links": {}
			}
		]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := NewEnerginetClient(energinetTestConfig(server.URL))
	require.NoError(t, err)

	units, err := c.Subunits("root")
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "root", units[0].UnitID)
	assert.Empty(t, units[0].EnergyLink)

	assert.Equal(t, "b1", units[1].UnitID)
	assert.Equal(t, "Building 1", units[1].Name)
	assert.Equal(t, server.URL+"/api/data/b1/energy", units[1].EnergyLink)
}

func TestEnerginetClient_SubunitsCycleSafe(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/unit/a", func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Drilldown points back at itself.
		fmt.Fprint(w, `[{"unit_id": "a", "name": "Loop", "datasources": [], "links": {"drilldown": {"href": "/api/unit/a"}}}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := NewEnerginetClient(energinetTestConfig(server.URL))
	require.NoError(t, err)

	units, err := c.Subunits("a")
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.Equal(t, 1, calls)
}

func TestEnerginetClient_EnergyValuesChunked(t *testing.T) {
	var intervals [][2]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from := r.Header.Get("DateIntervalFrom")
		to := r.Header.Get("DateIntervalTo")
		intervals = append(intervals, [2]string{from, to})

		start, err := time.Parse("2006-01-02", from)
		require.NoError(t, err)
		values := []EnergyValue{
			{Start: start, Value: 100},
			{Start: start.Add(time.Hour), Value: 110},
		}
		require.NoError(t, json.NewEncoder(w).Encode(values))
	}))
	defer server.Close()

	c, err := NewEnerginetClient(energinetTestConfig(server.URL))
	require.NoError(t, err)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	values, err := c.EnergyValues(server.URL+"/api/data/b1/energy", from, to)
	require.NoError(t, err)

	require.Len(t, intervals, 2)
	assert.Equal(t, [2]string{"2024-03-01", "2024-03-08"}, intervals[0])
	assert.Equal(t, [2]string{"2024-03-08", "2024-03-11"}, intervals[1])

	require.Len(t, values, 4)
	for i := 1; i < len(values); i++ {
		assert.False(t, values[i].Start.Before(values[i-1].Start))
	}
}

func TestEnerginetClient_EnergyValuesFiltersWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := []EnergyValue{
			{Start: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), Value: 1}, // before window
			{Start: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Value: 2},
			{Start: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Value: 3}, // at window end
		}
		require.NoError(t, json.NewEncoder(w).Encode(values))
	}))
	defer server.Close()

	c, err := NewEnerginetClient(energinetTestConfig(server.URL))
	require.NoError(t, err)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	values, err := c.EnergyValues(server.URL+"/energy", from, to)
	require.NoError(t, err)

	require.Len(t, values, 1)
	assert.Equal(t, 2.0, values[0].Value)
}

func TestEnerginetClient_EmptyLink(t *testing.T) {
	c, err := NewEnerginetClient(energinetTestConfig("http://unused"))
	require.NoError(t, err)

	values, err := c.EnergyValues("", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, values)
}
