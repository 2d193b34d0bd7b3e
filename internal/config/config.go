package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all tool settings, populated from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string

	// HTTP lookup providers.
	UserEmail     string
	DirectionsKey string
	NominatimURL  string
	OSRMURL       string
	DirectionsURL string
	ZooplaURL     string
	HTTPTimeout   time.Duration

	// Geocoding politeness and caching.
	GeocodeRate      float64
	GeocodeCacheSize int
	CachePath        string
	CacheTTL         time.Duration

	// Optional sinks.
	KafkaBrokers   []string
	KafkaTopic     string
	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "720h")
	if err != nil {
		return nil, err
	}

	geocodeRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GEOCODE_RATE", "1"), 64)
	if err != nil || geocodeRate <= 0 {
		return nil, errors.New("invalid GEOCODE_RATE")
	}

	cfg := &Config{
		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),

		UserEmail:     os.Getenv("USER_EMAIL"),
		DirectionsKey: os.Getenv("GOOGLE_DIRECTIONS_API_KEY"),
		NominatimURL:  sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		OSRMURL:       sharedcfg.EnvOrDefault("OSRM_URL", "http://router.project-osrm.org"),
		DirectionsURL: sharedcfg.EnvOrDefault("DIRECTIONS_URL", "https://maps.googleapis.com"),
		ZooplaURL:     sharedcfg.EnvOrDefault("ZOOPLA_URL", "https://www.zoopla.co.uk"),
		HTTPTimeout:   httpTimeout,

		GeocodeRate:      geocodeRate,
		GeocodeCacheSize: parseCacheSize(),
		CachePath:        os.Getenv("CACHE_PATH"),
		CacheTTL:         cacheTTL,

		KafkaBrokers:   sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     sharedcfg.EnvOrDefault("KAFKA_TOPIC", "ltn-survey-tallies"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or text)", cfg.LogFormat)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether tallies should be published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// RequireGeocoder returns an error when Nominatim cannot be used. Nominatim's
// usage policy requires an identifying User-Agent.
func (c *Config) RequireGeocoder() error {
	if c.UserEmail == "" {
		return errors.New("USER_EMAIL is required for geocoding (Nominatim User-Agent)")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
