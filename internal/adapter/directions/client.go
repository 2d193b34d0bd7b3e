// Package directions computes route distances with the Google Directions
// API. Google's map data lacks some of the scheme's filters, so its
// bicycling routes stand in for the road network before installation.
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const provider = "directions"

// ModeBicycling is the travel mode used for pre-scheme distances.
const ModeBicycling = "bicycling"

// Client implements domain.Router against the Google Directions API.
type Client struct {
	apiKey     string
	mode       string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Directions client for the given travel mode.
func NewClient(baseURL, apiKey, mode string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("directions: GOOGLE_DIRECTIONS_API_KEY is required")
	}
	if mode == "" {
		mode = ModeBicycling
	}
	return &Client{
		apiKey: apiKey,
		mode:   mode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Distance returns the length in metres of the first leg of the first route.
func (c *Client) Distance(ctx context.Context, from, to domain.Coordinates) (float64, error) {
	params := url.Values{
		"origin":      {from.String()},
		"destination": {to.String()},
		"mode":        {c.mode},
		"key":         {c.apiKey},
	}
	u := c.baseURL + "/maps/api/directions/json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		// The URL carries the API key; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, fmt.Errorf("directions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("directions API error: status %d: %s", resp.StatusCode, body)
	}

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return 0, fmt.Errorf("decode response: %w", err)
	}

	switch dr.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return 0, fmt.Errorf("directions %s -> %s: %w", from, to, domain.ErrNotFound)
	default:
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return 0, fmt.Errorf("directions API error: status %s: %s", dr.Status, dr.ErrorMessage)
	}
	if len(dr.Routes) == 0 || len(dr.Routes[0].Legs) == 0 {
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return 0, fmt.Errorf("directions %s -> %s: no legs: %w", from, to, domain.ErrNotFound)
	}

	meters := float64(dr.Routes[0].Legs[0].Distance.Value)
	c.metrics.LookupRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("route computed", "provider", provider, "mode", c.mode, "from", from.String(), "to", to.String(), "meters", meters)
	return meters, nil
}

// Directions API response types.

type directionsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message"`
	Routes       []route `json:"routes"`
}

type route struct {
	Legs []leg `json:"legs"`
}

type leg struct {
	Distance struct {
		Text  string `json:"text"`
		Value int    `json:"value"` // metres
	} `json:"distance"`
}
