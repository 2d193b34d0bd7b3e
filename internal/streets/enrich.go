package streets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

// ErrAllLookupsFailed is returned when an enrichment run attempted lookups
// and none of them succeeded.
var ErrAllLookupsFailed = errors.New("every lookup failed")

// Destination is the place before/after distances are measured to. Name is
// the short form used in column names.
type Destination struct {
	Name     string
	Location domain.Coordinates
}

// Templars is the default destination.
var Templars = Destination{Name: "templars", Location: domain.TemplarsShoppingPark}

// EnrichResult summarises what an enrichment run did.
type EnrichResult struct {
	Geocoded       int
	LTNDistances   int
	BeforeAfter    int
	Failed         int
	BeforeAfterRun bool
}

// Enricher fills missing locations and route distances in a street table.
type Enricher struct {
	geocoder domain.Geocoder
	after    domain.Router // post-scheme network, also used for the LTN distance
	before   domain.Router // pre-scheme approximation; nil skips before/after
	dest     Destination
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEnricher creates an Enricher. Pass a nil before router to leave the
// before/after columns alone.
func NewEnricher(geocoder domain.Geocoder, after, before domain.Router, dest Destination, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	return &Enricher{
		geocoder: geocoder,
		after:    after,
		before:   before,
		dest:     dest,
		metrics:  metrics,
		logger:   logger,
	}
}

// Enrich updates t in place. Rows whose lookups fail are logged and left
// blank so a later run can fill them.
func (e *Enricher) Enrich(ctx context.Context, t *Table) (EnrichResult, error) {
	if !t.Has(ColStreet) {
		return EnrichResult{}, fmt.Errorf("%w: %q is required for chart labels", domain.ErrMissingColumn, ColStreet)
	}
	if !t.Has(ColPostcode) {
		return EnrichResult{}, fmt.Errorf("%w: %q, run the postcodes command first", domain.ErrMissingColumn, ColPostcode)
	}
	e.metrics.RowsLoaded.WithLabelValues("streets").Add(float64(t.Len()))

	var res EnrichResult
	attempted := 0

	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, ok := t.Location(i); ok {
			continue
		}
		attempted++
		if err := e.geocode(ctx, t, i); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			e.logger.Warn("geocoding failed, leaving location blank",
				"street", t.Get(ColStreet, i), "postcode", t.Get(ColPostcode, i), "error", err)
			continue
		}
		res.Geocoded++
	}

	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if t.Get(ColDistanceToLTN, i) != "" {
			continue
		}
		loc, ok := t.Location(i)
		if !ok {
			t.AddColumn(ColDistanceToLTN)
			continue
		}
		attempted++
		d, err := e.distanceToLTN(ctx, t.Get(ColPostcode, i), loc)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			t.AddColumn(ColDistanceToLTN)
			e.logger.Warn("LTN distance failed", "street", t.Get(ColStreet, i), "error", err)
			continue
		}
		t.Set(ColDistanceToLTN, i, formatMeters(d))
		res.LTNDistances++
	}

	if e.before != nil {
		n, failed, err := e.enrichBeforeAfter(ctx, t)
		if err != nil {
			return res, err
		}
		if n >= 0 {
			res.BeforeAfterRun = true
			attempted += n
			res.BeforeAfter = n - failed
			res.Failed += failed
		}
	}

	e.logger.Info("streets enriched",
		"rows", t.Len(),
		"geocoded", res.Geocoded,
		"ltn_distances", res.LTNDistances,
		"before_after", res.BeforeAfter,
		"failed", res.Failed,
	)
	if attempted > 0 && res.Failed == attempted {
		return res, fmt.Errorf("enrich streets: %w (%d attempted)", ErrAllLookupsFailed, attempted)
	}
	return res, nil
}

func (e *Enricher) geocode(ctx context.Context, t *Table, i int) error {
	postcode := domain.NormalizePostcode(t.Get(ColPostcode, i))
	if postcode == "" {
		return errors.New("postcode is blank")
	}
	loc, err := e.geocoder.Geocode(ctx, postcode)
	if err != nil {
		return err
	}
	t.SetLocation(i, loc)
	return nil
}

// distanceToLTN routes to the south side of the filter. The street the
// filter sits on is zero by definition; its centroid can route round the
// far side.
func (e *Enricher) distanceToLTN(ctx context.Context, postcode string, loc domain.Coordinates) (float64, error) {
	if domain.NormalizePostcode(postcode) == domain.LittlemoreRoadPostcode {
		return 0, nil
	}
	return e.after.Distance(ctx, loc, domain.LTNFilter)
}

// enrichBeforeAfter fills both destination columns. It returns -1 attempts
// when the columns already exist.
func (e *Enricher) enrichBeforeAfter(ctx context.Context, t *Table) (attempted, failed int, err error) {
	beforeCol, afterCol := BeforeColumn(e.dest.Name), AfterColumn(e.dest.Name)
	if t.Has(beforeCol) && t.Has(afterCol) {
		e.logger.Info("before/after columns already exist, no action taken",
			"before_column", beforeCol, "after_column", afterCol)
		return -1, 0, nil
	}
	t.AddColumn(beforeCol)
	t.AddColumn(afterCol)

	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return attempted, failed, err
		}
		loc, ok := t.Location(i)
		if !ok {
			continue
		}
		attempted++

		before, err := e.before.Distance(ctx, loc, e.dest.Location)
		if err == nil {
			var after float64
			after, err = e.after.Distance(ctx, loc, e.dest.Location)
			if err == nil {
				t.Set(beforeCol, i, formatMeters(before))
				t.Set(afterCol, i, formatMeters(after))
				continue
			}
		}
		if ctx.Err() != nil {
			return attempted, failed, ctx.Err()
		}
		failed++
		e.logger.Warn("before/after distance failed", "street", t.Get(ColStreet, i), "destination", e.dest.Name, "error", err)
	}
	return attempted, failed, nil
}

func formatMeters(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}
