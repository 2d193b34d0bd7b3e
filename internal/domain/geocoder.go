package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that completed but matched nothing.
var ErrNotFound = errors.New("not found")

// Geocoder resolves a UK postcode to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, postcode string) (Coordinates, error)
}

// Router computes a route distance in metres between two points.
type Router interface {
	Distance(ctx context.Context, from, to Coordinates) (float64, error)
}

// PostcodeFinder looks up the postcode of a street within a named locality.
// It returns an empty string when the street is unknown.
type PostcodeFinder interface {
	Search(ctx context.Context, street, locality string) (string, error)
}
