// Package nominatim geocodes UK postcodes with the OpenStreetMap Nominatim
// search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const provider = "nominatim"

// Client implements domain.Geocoder using Nominatim. Nominatim's usage
// policy requires an identifying User-Agent and at most one request per
// second, so every request waits on the limiter.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client. requestsPerSecond bounds the request
// rate; userAgent is usually the operator's email address.
func NewClient(baseURL, userAgent string, timeout time.Duration, requestsPerSecond float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode returns the coordinates of a postcode. A postcode Nominatim does
// not know yields domain.ErrNotFound.
func (c *Client) Geocode(ctx context.Context, postcode string) (domain.Coordinates, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Coordinates{}, fmt.Errorf("geocode rate limit: %w", err)
		}
	}

	params := url.Values{
		"q":            {postcode},
		"format":       {"jsonv2"},
		"limit":        {"1"},
		"countrycodes": {"gb"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return domain.Coordinates{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w", postcode, domain.ErrNotFound)
	}

	coords, err := places[0].coordinates()
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w", postcode, err)
	}
	c.metrics.LookupRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("postcode geocoded", "postcode", postcode, "lat", coords.Lat, "lon", coords.Lon, "display_name", places[0].DisplayName)
	return coords, nil
}

// Nominatim API response types. Coordinates arrive as strings.

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p place) coordinates() (domain.Coordinates, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	c := domain.Coordinates{Lat: lat, Lon: lon}
	return c, c.Validate()
}
