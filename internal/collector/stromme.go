package collector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"peak_forecaster/internal/config"
	"peak_forecaster/internal/model"
)

// StrommeClient fetches Datek AMS meter data from the Stromme API. A client
// authenticates lazily: the first fetch requests an access token from the IDP
// with the configured basic-auth credential.
type StrommeClient struct {
	baseURL   string
	idpURL    string
	basicAuth string
	chunk     time.Duration
	client    *http.Client

	token string
}

func NewStrommeClient(cfg *config.Config) (*StrommeClient, error) {
	basicAuth, err := cfg.StrommeBasicAuthToken()
	if err != nil {
		return nil, err
	}
	chunkDays := cfg.DataCollection.ChunkSizeDays
	if chunkDays <= 0 {
		chunkDays = 7
	}
	return &StrommeClient{
		baseURL:   strings.TrimRight(cfg.Stromme.APIURL, "/"),
		idpURL:    cfg.Stromme.IDPURL,
		basicAuth: basicAuth,
		chunk:     time.Duration(chunkDays) * 24 * time.Hour,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Authenticate fetches a client-credentials access token from the IDP.
func (c *StrommeClient) Authenticate() error {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest("POST", c.idpURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+c.basicAuth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := doWithRetry(c.client, req)
	if err != nil {
		return fmt.Errorf("authenticating with stromme IDP: %w", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.token = tok.AccessToken
	return nil
}

// strommeMeasure is one hourly2 measurement. The active power register keeps
// its raw Datek name.
type strommeMeasure struct {
	Time   time.Time `json:"time"`
	Import float64   `json:"a"`
}

// HourlyHistory fetches hourly measurements for a meter between start and
// now, in chunks, and returns them as observations sorted by time.
func (c *StrommeClient) HourlyHistory(deviceID string, start time.Time) ([]model.Observation, error) {
	if c.token == "" {
		if err := c.Authenticate(); err != nil {
			return nil, err
		}
	}

	var obs []model.Observation
	end := time.Now().UTC()

	for chunkStart := start.UTC(); chunkStart.Before(end); {
		chunkEnd := chunkStart.Add(c.chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		measures, err := c.fetchMeasures(deviceID, "hourly2", chunkStart, chunkEnd)
		if err != nil {
			return obs, fmt.Errorf("fetching chunk %s: %w", chunkStart.Format("2006-01-02"), err)
		}
		for _, m := range measures {
			obs = append(obs, model.Observation{
				MeterID: deviceID,
				Time:    m.Time.UTC(),
				Import:  m.Import,
			})
		}

		chunkStart = chunkEnd
	}

	sort.Slice(obs, func(i, j int) bool { return obs[i].Time.Before(obs[j].Time) })
	return obs, nil
}

// Latest fetches the most recent minute-level reading for a meter.
func (c *StrommeClient) Latest(deviceID string) (model.Observation, bool, error) {
	if c.token == "" {
		if err := c.Authenticate(); err != nil {
			return model.Observation{}, false, err
		}
	}

	now := time.Now().UTC()
	measures, err := c.fetchMeasures(deviceID, "obis", now.Add(-5*time.Minute), now)
	if err != nil {
		return model.Observation{}, false, err
	}
	if len(measures) == 0 {
		return model.Observation{}, false, nil
	}

	last := measures[len(measures)-1]
	return model.Observation{
		MeterID: deviceID,
		Time:    last.Time.UTC(),
		Import:  last.Import,
	}, true, nil
}

func (c *StrommeClient) fetchMeasures(deviceID, name string, start, end time.Time) ([]strommeMeasure, error) {
	u := fmt.Sprintf("%s/handevices/%s/measures?%s", c.baseURL, url.PathEscape(deviceID), url.Values{
		"name":  {name},
		"start": {start.Format(time.RFC3339)},
		"end":   {end.Format(time.RFC3339)},
	}.Encode())

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	body, err := doWithRetry(c.client, req)
	if err != nil {
		return nil, err
	}

	var measures []strommeMeasure
	if err := json.Unmarshal(body, &measures); err != nil {
		return nil, fmt.Errorf("parsing measures: %w", err)
	}
	return measures, nil
}
