package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const (
	testUserAgent     = "survey@example.org"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		userAgent:  testUserAgent,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "OX4 4PU", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "gb", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode([]place{
			{Lat: "51.7245", Lon: "-1.2140", DisplayName: "OX4 4PU, Littlemore, Oxford"},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	coords, err := c.Geocode(context.Background(), "OX4 4PU")
	require.NoError(t, err)

	assert.InDelta(t, 51.7245, coords.Lat, 1e-9)
	assert.InDelta(t, -1.2140, coords.Lon, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.LookupRequests.WithLabelValues(provider, "success")))
}

func TestClient_Geocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Geocode(context.Background(), "ZZ9 9ZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.LookupRequests.WithLabelValues(provider, "empty")))
}

func TestClient_Geocode_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"north","lon":"-1.2"}]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Geocode(context.Background(), "OX4 4PU")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse lat")
}

func TestClient_Geocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`Access blocked`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Geocode(context.Background(), "OX4 4PU")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_Geocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50*time.Millisecond)
	_, err := c.Geocode(context.Background(), "OX4 4PU")
	require.Error(t, err)
}

func TestClient_Geocode_RateLimitHonoursContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", testUserAgent, time.Second, 0.001,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Spend the single burst token.
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Geocode(ctx, "OX4 4PU")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
