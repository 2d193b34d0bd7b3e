package zoopla

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const salesPage = `<!doctype html>
<html><body>
<div class="hp-card">
  <h2 class="hp-card__title c-abc"><a href="/property/1">12 Chapel Lane, <span>OX4 4PU</span></a></h2>
</div>
<div class="hp-card">
  <h2 class="hp-card__title">3 Chapel Lane, OX4 4PT</h2>
</div>
</body></html>`

func testClient(baseURL string) *Client {
	return NewClient(baseURL, "survey@example.org", 5*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Search_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/house-prices/littlemore/chapel-lane", r.URL.Path)
		assert.Equal(t, "survey@example.org", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(salesPage))
	}))
	defer srv.Close()

	postcode, err := testClient(srv.URL).Search(context.Background(), "Chapel  Lane", "Littlemore")
	require.NoError(t, err)
	assert.Equal(t, "OX4 4PU", postcode)
}

func TestClient_Search_NoCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>No results</p></body></html>`))
	}))
	defer srv.Close()

	postcode, err := testClient(srv.URL).Search(context.Background(), "Nowhere Road", "littlemore")
	require.NoError(t, err)
	assert.Empty(t, postcode)
}

func TestClient_Search_NotFoundPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	postcode, err := testClient(srv.URL).Search(context.Background(), "Nowhere Road", "littlemore")
	require.NoError(t, err)
	assert.Empty(t, postcode)
}

func TestClient_Search_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), "Chapel Lane", "littlemore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPostcodeFromTitle(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"12 Chapel Lane, ox4 4pu", "OX4 4PU"},
		{" Flat 2, OX4 3ST , Oxford", "OX4 3ST"},
		{"Chapel Lane", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, postcodeFromTitle(tt.title), tt.title)
	}
}

func TestFirstWithClass(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(salesPage))
	require.NoError(t, err)

	assert.Equal(t, "12 Chapel Lane, OX4 4PU", firstWithClass(doc, titleClass))
	assert.Empty(t, firstWithClass(doc, "hp-card__price"))
}
