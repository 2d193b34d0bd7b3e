package nominatim

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by
// normalised postcode, so "ox44pu" and "OX4 4PU" share an entry.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.Coordinates]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator holding at most maxEntries
// postcodes.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	cache, err := lru.New[string, domain.Coordinates](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: %w", err)
	}
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedGeocoder) Geocode(ctx context.Context, postcode string) (domain.Coordinates, error) {
	key := domain.NormalizePostcode(postcode)
	if coords, ok := c.cache.Get(key); ok {
		c.metrics.LookupCache.WithLabelValues("memory", "hit").Inc()
		return coords, nil
	}
	c.metrics.LookupCache.WithLabelValues("memory", "miss").Inc()

	coords, err := c.inner.Geocode(ctx, postcode)
	if err != nil {
		// Misses and failures are not cached so they can be retried.
		return coords, err
	}
	// A zero location is a lookup failure the inner geocoder did not report.
	if coords.IsZero() {
		return coords, fmt.Errorf("geocode %s: %w", key, domain.ErrNotFound)
	}
	c.cache.Add(key, coords)
	return coords, nil
}

// Len reports how many postcodes are cached.
func (c *CachedGeocoder) Len() int { return c.cache.Len() }
