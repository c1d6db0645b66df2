package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/heavenly/backend/internal/config"
	"github.com/heavenly/backend/pkg/logger"
)

// Point is a WGS84 coordinate pair. The zero value marks "location unknown".
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Geocoder resolves a free-form address to a point. Implementations never
// return an error: any lookup failure degrades to the zero point so listing
// creation is never aborted by the geocoding dependency.
type Geocoder interface {
	Geocode(ctx context.Context, query string) Point
}

// NominatimClient geocodes through a Nominatim-compatible search endpoint.
// The usage policy requires an identifying User-Agent and at most about one
// request per second, so calls are spaced by a minimum interval.
type NominatimClient struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

func NewNominatimClient(httpClient *http.Client, cfg config.GeocodeConfig) *NominatimClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &NominatimClient{
		httpClient:  httpClient,
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		minInterval: cfg.MinInterval,
	}
}

type nominatimResult struct {
	Lon string `json:"lon"`
	Lat string `json:"lat"`
}

func (n *NominatimClient) Geocode(ctx context.Context, query string) Point {
	n.throttle()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		logger.Error("geocode_request_build_failed", err, map[string]interface{}{"query": query})
		return Point{}
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		logger.Error("geocode_request_failed", err, map[string]interface{}{"query": query})
		return Point{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("geocode_bad_status", map[string]interface{}{
			"query":  query,
			"status": resp.StatusCode,
		})
		return Point{}
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		logger.Error("geocode_decode_failed", err, map[string]interface{}{"query": query})
		return Point{}
	}

	if len(results) == 0 {
		logger.Info("geocode_no_results", map[string]interface{}{"query": query})
		return Point{}
	}

	// Nominatim returns lat/lon as strings.
	lon, err1 := strconv.ParseFloat(results[0].Lon, 64)
	lat, err2 := strconv.ParseFloat(results[0].Lat, 64)
	if err1 != nil || err2 != nil {
		logger.Warn("geocode_unparsable_coordinates", map[string]interface{}{
			"query": query,
			"lon":   results[0].Lon,
			"lat":   results[0].Lat,
		})
		return Point{}
	}

	logger.Info("geocode_resolved", map[string]interface{}{
		"query":     query,
		"longitude": lon,
		"latitude":  lat,
	})
	return Point{Longitude: lon, Latitude: lat}
}

func (n *NominatimClient) throttle() {
	if n.minInterval <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if wait := n.minInterval - time.Since(n.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	n.lastCall = time.Now()
}
