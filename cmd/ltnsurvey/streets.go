package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ltn-survey/internal/adapter/directions"
	"github.com/couchcryptid/ltn-survey/internal/adapter/nominatim"
	"github.com/couchcryptid/ltn-survey/internal/adapter/osrm"
	"github.com/couchcryptid/ltn-survey/internal/adapter/sqlite"
	"github.com/couchcryptid/ltn-survey/internal/chart"
	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/streets"
)

var (
	destName string
	destLat  float64
	destLon  float64

	enrichInPlace bool
	enrichOut     string

	plotOut         string
	plotDestination string
	plotOrigin      string
)

var streetsCmd = &cobra.Command{
	Use:   "streets",
	Short: "Enrich and plot the street data file",
}

var streetsEnrichCmd = &cobra.Command{
	Use:   "enrich <streets.csv>",
	Short: "Fill in locations and route distances",
	Long: `Geocodes every row without a latitude/longitude (Nominatim), fills
driving_distance_to_ltn_meters (OSRM), and adds the before/after distance
columns for the destination. Before is the Google Directions bicycling
route, which still crosses the filter; after is the OSRM driving route.
Before/after is skipped when GOOGLE_DIRECTIONS_API_KEY is unset or both
columns already exist.

Cells already filled are left alone, so the command can be re-run after a
partial failure. Lookups are cached in CACHE_PATH when it is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runStreetsEnrich,
}

var streetsPlotCmd = &cobra.Command{
	Use:   "plot <streets.csv>",
	Short: "Draw before/after driving distances as a stacked bar chart",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreetsPlot,
}

func init() {
	for _, c := range []*cobra.Command{streetsEnrichCmd, streetsPlotCmd} {
		c.Flags().StringVar(&destName, "dest-name", streets.Templars.Name, "Destination short name used in column names")
	}
	streetsEnrichCmd.Flags().Float64Var(&destLat, "dest-lat", streets.Templars.Location.Lat, "Destination latitude")
	streetsEnrichCmd.Flags().Float64Var(&destLon, "dest-lon", streets.Templars.Location.Lon, "Destination longitude")
	streetsEnrichCmd.Flags().BoolVar(&enrichInPlace, "in-place", false, "Overwrite the input file")
	streetsEnrichCmd.Flags().StringVar(&enrichOut, "out", "", "Output CSV (default stdout)")
	streetsEnrichCmd.MarkFlagsMutuallyExclusive("in-place", "out")

	streetsPlotCmd.Flags().StringVar(&plotOut, "out", "driving_distance.png", "Chart file; the extension picks the format")
	streetsPlotCmd.Flags().StringVar(&plotDestination, "destination", "Templars Shopping Park", "Destination name in the chart title")
	streetsPlotCmd.Flags().StringVar(&plotOrigin, "origin", "Littlemore", "Origin name in the chart title")

	streetsCmd.AddCommand(streetsEnrichCmd)
	streetsCmd.AddCommand(streetsPlotCmd)
}

func runStreetsEnrich(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := cfg.RequireGeocoder(); err != nil {
		return err
	}

	dest := streets.Destination{
		Name:     strings.ToLower(strings.TrimSpace(destName)),
		Location: domain.Coordinates{Lat: destLat, Lon: destLon},
	}
	if dest.Name == "" {
		return errors.New("--dest-name must not be empty")
	}
	if err := dest.Location.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	table, err := readStreets(args[0])
	if err != nil {
		return err
	}

	lookups, err := newLookups()
	if err != nil {
		return err
	}
	defer lookups.Close()

	enricher := streets.NewEnricher(lookups.geocoder, lookups.after, lookups.before, dest, metrics, logger)
	res, enrichErr := enricher.Enrich(ctx, table)

	// Whatever was filled is kept even when the run fails part way.
	out := enrichOut
	if enrichInPlace {
		out = args[0]
	}
	if err := writeTable(table, out, cmd.OutOrStdout()); err != nil {
		return err
	}
	if enrichErr != nil {
		return enrichErr
	}
	if !res.BeforeAfterRun && lookups.before != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Columns %s and %s already exist, no action taken.\n",
			streets.BeforeColumn(dest.Name), streets.AfterColumn(dest.Name))
	}
	return nil
}

func runStreetsPlot(cmd *cobra.Command, args []string) error {
	table, err := readStreets(args[0])
	if err != nil {
		return err
	}
	dest := strings.ToLower(strings.TrimSpace(destName))
	if !table.Has(streets.BeforeColumn(dest)) || !table.Has(streets.AfterColumn(dest)) {
		return fmt.Errorf("%w: %s and %s, run streets enrich first",
			domain.ErrMissingColumn, streets.BeforeColumn(dest), streets.AfterColumn(dest))
	}

	rows, err := table.Streets(dest)
	if err != nil {
		return err
	}
	avg, err := chart.StackedDistances(rows, plotOut, chart.DistanceOptions{
		Destination: plotDestination,
		Origin:      plotOrigin,
	})
	if err != nil {
		return err
	}
	logger.Info("distance chart written", "path", plotOut, "streets", len(rows), "average_increase_miles", avg)
	fmt.Fprintf(cmd.OutOrStdout(), "Average distance increase: %.2f miles\n", avg)
	return nil
}

func readStreets(path string) (*streets.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open streets: %w", err)
	}
	defer f.Close()
	t, err := streets.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// lookups is the geocoder and routers used by streets enrich, each behind
// the on-disk cache when one is configured.
type lookups struct {
	geocoder domain.Geocoder
	after    domain.Router
	before   domain.Router
	cache    *sqlite.Cache
}

func newLookups() (*lookups, error) {
	l := &lookups{}

	var geocoder domain.Geocoder = nominatim.NewClient(cfg.NominatimURL, cfg.UserEmail, cfg.HTTPTimeout, cfg.GeocodeRate, metrics, logger)
	var after domain.Router = osrm.NewClient(cfg.OSRMURL, cfg.HTTPTimeout, metrics, logger)
	var before domain.Router
	if cfg.DirectionsKey != "" {
		c, err := directions.NewClient(cfg.DirectionsURL, cfg.DirectionsKey, directions.ModeBicycling, cfg.HTTPTimeout, metrics, logger)
		if err != nil {
			return nil, err
		}
		before = c
	} else {
		logger.Info("GOOGLE_DIRECTIONS_API_KEY not set, skipping before/after distances")
	}

	if cfg.CachePath != "" {
		cache, err := sqlite.Open(cfg.CachePath, cfg.CacheTTL, metrics, logger)
		if err != nil {
			return nil, err
		}
		l.cache = cache
		geocoder = cache.Geocoder(geocoder)
		after = cache.Router("osrm", after)
		if before != nil {
			before = cache.Router("directions", before)
		}
		logger.Info("lookup cache enabled", "path", cfg.CachePath, "ttl", cfg.CacheTTL)
	}

	cached, err := nominatim.NewCachedGeocoder(geocoder, cfg.GeocodeCacheSize, metrics)
	if err != nil {
		l.Close()
		return nil, err
	}
	l.geocoder = cached
	l.after = after
	l.before = before
	return l, nil
}

func (l *lookups) Close() {
	if l.cache == nil {
		return
	}
	if err := l.cache.Close(); err != nil {
		logger.Warn("lookup cache close error", "error", err)
	}
}
