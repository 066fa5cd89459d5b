package collector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peak_forecaster/internal/config"
)

// FrostClient fetches hourly air temperature observations from the MET Frost
// API.
type FrostClient struct {
	baseURL  string
	clientID string
	client   *http.Client
}

func NewFrostClient(cfg *config.Config) (*FrostClient, error) {
	clientID, err := cfg.FrostClientID()
	if err != nil {
		return nil, err
	}
	return &FrostClient{
		baseURL:  strings.TrimRight(cfg.Frost.APIURL, "/"),
		clientID: clientID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// TemperatureReading is one air temperature sample from a weather station.
type TemperatureReading struct {
	Time  time.Time
	Value float64
}

type frostResponse struct {
	Data []struct {
		ReferenceTime time.Time `json:"referenceTime"`
		Observations  []struct {
			Value float64 `json:"value"`
		} `json:"observations"`
	} `json:"data"`
}

// Temperatures fetches air_temperature observations for a station between
// start and end.
func (c *FrostClient) Temperatures(stationID string, start, end time.Time) ([]TemperatureReading, error) {
	u := fmt.Sprintf("%s/observations/v0.jsonld?%s", c.baseURL, url.Values{
		"sources":       {stationID},
		"elements":      {"air_temperature"},
		"referencetime": {start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339)},
		"limit":         {"1000"},
	}.Encode())

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	// Frost uses the client ID as basic-auth username with an empty password.
	req.SetBasicAuth(c.clientID, "")

	body, err := doWithRetry(c.client, req)
	if err != nil {
		return nil, fmt.Errorf("fetching temperatures for %s: %w", stationID, err)
	}

	var resp frostResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing frost response: %w", err)
	}

	var readings []TemperatureReading
	for _, item := range resp.Data {
		if len(item.Observations) == 0 {
			continue
		}
		readings = append(readings, TemperatureReading{
			Time:  item.ReferenceTime.UTC(),
			Value: item.Observations[0].Value,
		})
	}
	return readings, nil
}
