package collector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"peak_forecaster/internal/config"
)

// EnerginetClient fetches building energy data from the Energinet portal API.
type EnerginetClient struct {
	baseURL     string
	bearerToken string
	acceptLang  string
	chunk       time.Duration
	client      *http.Client
}

func NewEnerginetClient(cfg *config.Config) (*EnerginetClient, error) {
	token, err := cfg.EnerginetBearerToken()
	if err != nil {
		return nil, err
	}
	chunkDays := cfg.DataCollection.ChunkSizeDays
	if chunkDays <= 0 {
		chunkDays = 7
	}
	return &EnerginetClient{
		baseURL:     strings.TrimRight(cfg.Energinet.APIURL, "/"),
		bearerToken: token,
		acceptLang:  cfg.Energinet.AcceptLanguage,
		chunk:       time.Duration(chunkDays) * 24 * time.Hour,
		client:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Unit is one node of the portal's building hierarchy, flattened. EnergyLink
// is empty for units without an energy datasource.
type Unit struct {
	UnitID     string
	Name       string
	EnergyLink string
}

type energinetUnit struct {
	UnitID      string `json:"unit_id"`
	Name        string `json:"name"`
	Datasources []struct {
		Label string `json:"label"`
		Links struct {
			Data struct {
				Href string `json:"href"`
			} `json:"data"`
		} `json:"links"`
	} `json:"datasources"`
	Links struct {
		Drilldown struct {
			Href string `json:"href"`
		} `json:"drilldown"`
	} `json:"links"`
}

// Subunits recursively walks the drilldown links under unitID and returns the
// flattened unit list, deduplicated by unit ID.
func (c *EnerginetClient) Subunits(unitID string) ([]Unit, error) {
	seen := make(map[string]bool)
	return c.subunits(unitID, seen)
}

func (c *EnerginetClient) subunits(unitID string, seen map[string]bool) ([]Unit, error) {
	body, err := c.get(c.baseURL+"/api/unit/"+unitID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching unit %q: %w", unitID, err)
	}

	var raw []energinetUnit
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing unit %q: %w", unitID, err)
	}

	var units []Unit
	for _, item := range raw {
		if !seen[item.UnitID] {
			seen[item.UnitID] = true
			units = append(units, flattenUnit(c.baseURL, item))
		}

		ddLink := item.Links.Drilldown.Href
		if ddLink == "" {
			continue
		}
		subID := ddLink[strings.LastIndex(ddLink, "/")+1:]
		if subID == item.UnitID || seen[subID] {
			continue
		}
		deeper, err := c.subunits(subID, seen)
		if err != nil {
			return units, err
		}
		units = append(units, deeper...)
	}

	return units, nil
}

func flattenUnit(baseURL string, item energinetUnit) Unit {
	u := Unit{UnitID: item.UnitID, Name: item.Name}
	for _, ds := range item.Datasources {
		if strings.ToLower(ds.Label) != "energy" {
			continue
		}
		link := ds.Links.Data.Href
		if strings.HasPrefix(link, "/") {
			link = baseURL + link
		}
		u.EnergyLink = link
	}
	return u
}

// EnergyValue is one hourly energy sample from a unit's energy datasource.
type EnergyValue struct {
	Start time.Time `json:"Start"`
	Value float64   `json:"Value"`
}

// EnergyValues fetches a unit's energy data between from and to (exclusive),
// chunked with per-chunk date interval headers, sorted by start time.
func (c *EnerginetClient) EnergyValues(energyLink string, from, to time.Time) ([]EnergyValue, error) {
	if energyLink == "" {
		return nil, nil
	}
	u := energyLink
	if !strings.HasPrefix(u, "http") {
		u = c.baseURL + u
	}

	var all []EnergyValue
	for chunkStart := from; chunkStart.Before(to); {
		chunkEnd := chunkStart.Add(c.chunk)
		if chunkEnd.After(to) {
			chunkEnd = to
		}

		body, err := c.get(u, map[string]string{
			"DateIntervalFrom": chunkStart.Format("2006-01-02"),
			"DateIntervalTo":   chunkEnd.Format("2006-01-02"),
		})
		if err != nil {
			return all, fmt.Errorf("fetching energy %s to %s: %w",
				chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"), err)
		}

		var values []EnergyValue
		if err := json.Unmarshal(body, &values); err != nil {
			return all, fmt.Errorf("parsing energy data: %w", err)
		}
		all = append(all, values...)

		chunkStart = chunkEnd
	}

	// Chunk boundaries can duplicate or stray outside the window.
	filtered := all[:0]
	for _, v := range all {
		if !v.Start.Before(from) && v.Start.Before(to) {
			filtered = append(filtered, v)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Start.Before(filtered[j].Start) })
	return filtered, nil
}

func (c *EnerginetClient) get(url string, extraHeaders map[string]string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Accept-Language", c.acceptLang)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return doWithRetry(c.client, req)
}
