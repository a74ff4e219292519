package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// NominatimGeocoder resolves coordinates through the OpenStreetMap reverse
// endpoint. Requests are spaced by MinInterval and answers are cached per
// rounded coordinate pair.
type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]string
}

type nominatimAddress struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	Suburb  string `json:"suburb"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type nominatimReverse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

func (g *NominatimGeocoder) defaults() {
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "civicdesk-backend"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lon, 'f', 5, 64)
}

func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)

	g.mu.Lock()
	g.defaults()
	if g.cache == nil {
		g.cache = map[string]string{}
	}
	if cached, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	sleepFor := time.Until(g.lastReqAt.Add(g.MinInterval))
	if sleepFor > 0 {
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleepFor):
		}
		g.mu.Lock()
	}
	g.lastReqAt = time.Now()
	g.mu.Unlock()

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	endpoint := fmt.Sprintf("%s/reverse?%s", g.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var body nominatimReverse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	address, err := formatReverse(body)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.cache[key] = address
	g.mu.Unlock()
	return address, nil
}

// formatReverse prefers a short "locality, state, country" form and falls
// back to the full display name.
func formatReverse(body nominatimReverse) (string, error) {
	if body.Error != "" {
		return "", ErrNotFound
	}
	a := body.Address
	locality := a.City
	if locality == "" {
		locality = a.Town
	}
	if locality == "" {
		locality = a.Village
	}
	if locality == "" {
		locality = a.Suburb
	}
	short := JoinAddressParts(locality, a.State, a.Country)
	if locality != "" && short != "" {
		return short, nil
	}
	if body.DisplayName != "" {
		return body.DisplayName, nil
	}
	if short != "" {
		return short, nil
	}
	return "", ErrNotFound
}
