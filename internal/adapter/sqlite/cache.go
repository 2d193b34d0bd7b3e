// Package sqlite persists lookup results between runs so repeated runs do
// not spend API quota on postcodes and routes already resolved.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const layer = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS lookups (
	kind       TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (kind, key)
);`

// Cache is a key/value store of lookup results with a time-to-live. Entries
// older than the TTL are treated as missing and refreshed on next use.
type Cache struct {
	db      *sql.DB
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Open opens or creates the cache database at path. A ttl of zero keeps
// entries forever.
func Open(path string, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{db: db, ttl: ttl, metrics: metrics, logger: logger}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(ctx context.Context, kind, key string) (string, bool, error) {
	var value string
	var fetched int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value, fetched_at FROM lookups WHERE kind = ? AND key = ?`, kind, key,
	).Scan(&value, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		c.metrics.LookupCache.WithLabelValues(layer, "miss").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache: %w", err)
	}

	if c.ttl > 0 && domain.Clock().Since(time.Unix(fetched, 0)) > c.ttl {
		c.metrics.LookupCache.WithLabelValues(layer, "miss").Inc()
		c.logger.Debug("cache entry expired", "kind", kind, "key", key)
		return "", false, nil
	}
	c.metrics.LookupCache.WithLabelValues(layer, "hit").Inc()
	return value, true, nil
}

func (c *Cache) put(ctx context.Context, kind, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lookups (kind, key, value, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET value = excluded.value, fetched_at = excluded.fetched_at`,
		kind, key, value, domain.Clock().Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Geocoder wraps inner so results are read from and written to the cache.
func (c *Cache) Geocoder(inner domain.Geocoder) domain.Geocoder {
	return &cachedGeocoder{cache: c, inner: inner}
}

// Router wraps inner so distances are cached under the given provider name.
func (c *Cache) Router(name string, inner domain.Router) domain.Router {
	return &cachedRouter{cache: c, kind: "route:" + name, inner: inner}
}

type cachedGeocoder struct {
	cache *Cache
	inner domain.Geocoder
}

func (g *cachedGeocoder) Geocode(ctx context.Context, postcode string) (domain.Coordinates, error) {
	key := domain.NormalizePostcode(postcode)
	if raw, ok, err := g.cache.get(ctx, "geocode", key); err != nil {
		g.cache.logger.Warn("geocode cache read failed", "postcode", key, "error", err)
	} else if ok {
		var coords domain.Coordinates
		if err := json.Unmarshal([]byte(raw), &coords); err == nil {
			return coords, nil
		}
	}

	coords, err := g.inner.Geocode(ctx, postcode)
	if err != nil {
		return coords, err
	}
	raw, _ := json.Marshal(coords)
	if err := g.cache.put(ctx, "geocode", key, string(raw)); err != nil {
		g.cache.logger.Warn("geocode cache write failed", "postcode", key, "error", err)
	}
	return coords, nil
}

type cachedRouter struct {
	cache *Cache
	kind  string
	inner domain.Router
}

func (r *cachedRouter) Distance(ctx context.Context, from, to domain.Coordinates) (float64, error) {
	key := from.String() + ">" + to.String()
	if raw, ok, err := r.cache.get(ctx, r.kind, key); err != nil {
		r.cache.logger.Warn("route cache read failed", "kind", r.kind, "key", key, "error", err)
	} else if ok {
		if meters, err := strconv.ParseFloat(raw, 64); err == nil {
			return meters, nil
		}
	}

	meters, err := r.inner.Distance(ctx, from, to)
	if err != nil {
		return meters, err
	}
	if err := r.cache.put(ctx, r.kind, key, strconv.FormatFloat(meters, 'f', -1, 64)); err != nil {
		r.cache.logger.Warn("route cache write failed", "kind", r.kind, "key", key, "error", err)
	}
	return meters, nil
}
