package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

type countingGeocoder struct {
	calls  int
	result domain.Coordinates
	err    error
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) (domain.Coordinates, error) {
	m.calls++
	return m.result, m.err
}

type countingRouter struct {
	calls  int
	meters float64
}

func (m *countingRouter) Distance(_ context.Context, _, _ domain.Coordinates) (float64, error) {
	m.calls++
	return m.meters, nil
}

func openCache(t *testing.T, path string, ttl time.Duration) (*Cache, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	c, err := Open(path, ttl, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, metrics
}

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2021, time.November, 23, 9, 0, 0, 0, time.UTC))
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })
	return clk
}

func TestCachedGeocoder_PersistsAcrossOpen(t *testing.T) {
	freezeClock(t)
	path := filepath.Join(t.TempDir(), "cache", "lookups.db")
	inner := &countingGeocoder{result: domain.Coordinates{Lat: 51.7245, Lon: -1.214}}

	c1, _ := openCache(t, path, time.Hour)
	got, err := c1.Geocoder(inner).Geocode(context.Background(), "ox44pu")
	require.NoError(t, err)
	assert.Equal(t, inner.result, got)
	require.NoError(t, c1.Close())

	c2, metrics := openCache(t, path, time.Hour)
	got, err = c2.Geocoder(inner).Geocode(context.Background(), "OX4 4PU")
	require.NoError(t, err)
	assert.Equal(t, inner.result, got)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LookupCache.WithLabelValues(layer, "hit")))
}

func TestCachedGeocoder_Expiry(t *testing.T) {
	clk := freezeClock(t)
	c, metrics := openCache(t, filepath.Join(t.TempDir(), "lookups.db"), time.Hour)
	inner := &countingGeocoder{result: domain.Coordinates{Lat: 51.7, Lon: -1.2}}
	g := c.Geocoder(inner)

	_, err := g.Geocode(context.Background(), "OX4 4PU")
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	_, err = g.Geocode(context.Background(), "OX4 4PU")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	clk.Advance(2 * time.Hour)
	_, err = g.Geocode(context.Background(), "OX4 4PU")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.LookupCache.WithLabelValues(layer, "miss")))
}

func TestCachedGeocoder_ErrorsNotCached(t *testing.T) {
	freezeClock(t)
	c, _ := openCache(t, filepath.Join(t.TempDir(), "lookups.db"), 0)
	inner := &countingGeocoder{err: domain.ErrNotFound}
	g := c.Geocoder(inner)

	_, err := g.Geocode(context.Background(), "ZZ9 9ZZ")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = g.Geocode(context.Background(), "ZZ9 9ZZ")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 2, inner.calls)
}

func TestCachedRouter_KeyedByProviderAndEndpoints(t *testing.T) {
	freezeClock(t)
	c, _ := openCache(t, filepath.Join(t.TempDir(), "lookups.db"), 0)
	osrm := &countingRouter{meters: 1500}
	google := &countingRouter{meters: 900}
	from := domain.Coordinates{Lat: 51.7245, Lon: -1.214}

	after := c.Router("osrm", osrm)
	before := c.Router("directions", google)

	for range 2 {
		d, err := after.Distance(context.Background(), from, domain.TemplarsShoppingPark)
		require.NoError(t, err)
		assert.InDelta(t, 1500, d, 1e-9)

		d, err = before.Distance(context.Background(), from, domain.TemplarsShoppingPark)
		require.NoError(t, err)
		assert.InDelta(t, 900, d, 1e-9)
	}
	assert.Equal(t, 1, osrm.calls)
	assert.Equal(t, 1, google.calls)

	_, err := after.Distance(context.Background(), from, domain.LTNFilter)
	require.NoError(t, err)
	assert.Equal(t, 2, osrm.calls)
}
