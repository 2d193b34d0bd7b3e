package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MetersToMiles converts metres to statute miles.
	MetersToMiles = 0.000621371

	// RoutingNoiseMeters is the largest before/after difference still treated
	// as the same route.
	RoutingNoiseMeters = 50.0

	// LittlemoreRoadPostcode sits on the filter itself; routing from its
	// geocoded centroid can land on the wrong side, so its distance is zero.
	LittlemoreRoadPostcode = "OX4 3ST"
)

// Coordinates is a WGS-84 latitude/longitude pair. The zero value means unset.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

var (
	// LTNFilter is the south side of the Littlemore Road modal filter
	// (OpenStreetMap node 8485497325).
	LTNFilter = Coordinates{Lat: 51.72890, Lon: -1.21867}

	// TemplarsShoppingPark is the default before/after destination.
	TemplarsShoppingPark = Coordinates{Lat: 51.732612, Lon: -1.218179}
)

// IsZero reports whether the coordinates are unset.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Validate checks latitude and longitude ranges.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %g out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %g out of range [-180, 180]", c.Lon)
	}
	return nil
}

// String formats coordinates as "lat,lon" with six decimal places.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Street is one row of the street data file.
type Street struct {
	Name           string
	Postcode       string
	Location       Coordinates
	DistanceToLTN  *float64
	DistanceBefore *float64
	DistanceAfter  *float64
	Responses      int
}

// Validate checks the schema constraints of an enriched street row.
func (s Street) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("street name is empty")
	}
	if s.Postcode == "" {
		return fmt.Errorf("street %q: postcode is empty", s.Name)
	}
	if !ValidPostcode(s.Postcode) {
		return fmt.Errorf("street %q: postcode %q is malformed", s.Name, s.Postcode)
	}
	if s.Location.IsZero() {
		return fmt.Errorf("street %q: location is missing", s.Name)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("street %q: %w", s.Name, err)
	}
	return nil
}

// DistanceIncrease returns after minus before in metres, with differences of
// RoutingNoiseMeters or less (including negative ones) treated as zero.
// ok is false when either distance is missing.
func (s Street) DistanceIncrease() (increase float64, ok bool) {
	if s.DistanceBefore == nil || s.DistanceAfter == nil {
		return 0, false
	}
	diff := *s.DistanceAfter - *s.DistanceBefore
	if diff <= RoutingNoiseMeters {
		return 0, true
	}
	return diff, true
}

// ParseOptionalFloat parses s as a float64. Blank input yields nil.
func ParseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
