// Package osrm computes driving distances with the Open Source Routing
// Machine HTTP API. OSRM's map data includes current modal filters, so its
// routes describe the network after the scheme was installed.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const provider = "osrm"

// Client implements domain.Router against an OSRM server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OSRM routing client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Distance returns the driving distance in metres of the fastest route.
func (c *Client) Distance(ctx context.Context, from, to domain.Coordinates) (float64, error) {
	// OSRM uses lon,lat order.
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		c.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return 0, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("osrm API error: status %d: %s", resp.StatusCode, body)
	}

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if rr.Code != "Ok" || len(rr.Routes) == 0 {
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return 0, fmt.Errorf("route %s -> %s: code %q %s: %w", from, to, rr.Code, rr.Message, domain.ErrNotFound)
	}

	c.metrics.LookupRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("route computed", "provider", provider, "from", from.String(), "to", to.String(), "meters", rr.Routes[0].Distance)
	return rr.Routes[0].Distance, nil
}

// OSRM API response types.

type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance float64 `json:"distance"` // metres
	Duration float64 `json:"duration"` // seconds
}
