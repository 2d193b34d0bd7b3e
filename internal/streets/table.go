// Package streets reads, enriches and writes the street data file: one row
// per surveyed street with its postcode, location and route distances.
package streets

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// Column names of the street data file.
const (
	ColStreet        = "street"
	ColPostcode      = "postcode"
	ColLatitude      = "latitude"
	ColLongitude     = "longitude"
	ColDistanceToLTN = "driving_distance_to_ltn_meters"
	ColResponses     = "responses"
)

// BeforeColumn names the pre-scheme distance column for a destination.
func BeforeColumn(dest string) string {
	return "driving_distance_to_" + dest + "_before"
}

// AfterColumn names the post-scheme distance column for a destination.
func AfterColumn(dest string) string {
	return "driving_distance_to_" + dest + "_after"
}

// Table is a street data file held as string columns. Columns this package
// does not know about are kept in their file order.
type Table struct {
	names []string
	cols  map[string][]string
	rows  int
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{cols: make(map[string][]string, len(columns))}
	for _, c := range columns {
		t.names = append(t.names, c)
		t.cols[c] = nil
	}
	return t
}

// ReadCSV loads a street data file.
func ReadCSV(r io.Reader) (*Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read street csv: %w", df.Err)
	}

	t := &Table{names: df.Names(), cols: make(map[string][]string, df.Ncol()), rows: df.Nrow()}
	for _, name := range t.names {
		vals := df.Col(name).Records()
		for i, v := range vals {
			vals[i] = cell(v)
		}
		t.cols[name] = vals
	}
	return t, nil
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	if len(t.names) == 0 {
		return errors.New("write street csv: table has no columns")
	}
	cols := make([]series.Series, len(t.names))
	for i, name := range t.names {
		cols[i] = series.New(t.column(name), series.String, name)
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return fmt.Errorf("write street csv: %w", df.Err)
	}
	return df.WriteCSV(w)
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in file order.
func (t *Table) Columns() []string { return append([]string(nil), t.names...) }

// Has reports whether the table has a column.
func (t *Table) Has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// Get returns the value at row i of col, or "" if the column is absent.
func (t *Table) Get(col string, i int) string {
	vals, ok := t.cols[col]
	if !ok || i >= len(vals) {
		return ""
	}
	return vals[i]
}

// Set stores v at row i of col, appending the column if it is new.
func (t *Table) Set(col string, i int, v string) {
	t.AddColumn(col)
	t.cols[col] = t.column(col)
	t.cols[col][i] = v
}

// AddColumn appends an empty column unless it already exists.
func (t *Table) AddColumn(col string) {
	if t.Has(col) {
		return
	}
	t.names = append(t.names, col)
	t.cols[col] = make([]string, t.rows)
}

// AppendRow adds a row; values are matched to columns by name and keys
// naming no column are ignored.
func (t *Table) AppendRow(values map[string]string) {
	for _, name := range t.names {
		t.cols[name] = append(t.column(name), values[name])
	}
	t.rows++
}

// column returns col padded to the row count.
func (t *Table) column(col string) []string {
	vals := t.cols[col]
	for len(vals) < t.rows {
		vals = append(vals, "")
	}
	return vals
}

// Location returns the coordinates of row i, or false if either is blank or
// unparseable.
func (t *Table) Location(i int) (domain.Coordinates, bool) {
	lat, err := domain.ParseOptionalFloat(t.Get(ColLatitude, i))
	if err != nil || lat == nil {
		return domain.Coordinates{}, false
	}
	lon, err := domain.ParseOptionalFloat(t.Get(ColLongitude, i))
	if err != nil || lon == nil {
		return domain.Coordinates{}, false
	}
	c := domain.Coordinates{Lat: *lat, Lon: *lon}
	if c.Validate() != nil {
		return domain.Coordinates{}, false
	}
	return c, true
}

// SetLocation stores coordinates for row i.
func (t *Table) SetLocation(i int, c domain.Coordinates) {
	t.Set(ColLatitude, i, strconv.FormatFloat(c.Lat, 'f', -1, 64))
	t.Set(ColLongitude, i, strconv.FormatFloat(c.Lon, 'f', -1, 64))
}

// Streets parses every row, reading before/after distances for dest.
func (t *Table) Streets(dest string) ([]domain.Street, error) {
	if !t.Has(ColStreet) {
		return nil, fmt.Errorf("%w: %q", domain.ErrMissingColumn, ColStreet)
	}

	out := make([]domain.Street, t.rows)
	for i := range out {
		s := domain.Street{
			Name:     t.Get(ColStreet, i),
			Postcode: domain.NormalizePostcode(t.Get(ColPostcode, i)),
		}
		s.Location, _ = t.Location(i)

		var err error
		if s.DistanceToLTN, err = domain.ParseOptionalFloat(t.Get(ColDistanceToLTN, i)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i+2, ColDistanceToLTN, err)
		}
		if s.DistanceBefore, err = domain.ParseOptionalFloat(t.Get(BeforeColumn(dest), i)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i+2, BeforeColumn(dest), err)
		}
		if s.DistanceAfter, err = domain.ParseOptionalFloat(t.Get(AfterColumn(dest), i)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i+2, AfterColumn(dest), err)
		}
		if raw := t.Get(ColResponses, i); raw != "" {
			if s.Responses, err = strconv.Atoi(raw); err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+2, ColResponses, err)
			}
		}
		out[i] = s
	}
	return out, nil
}

// cell trims a value and maps gota's NaN marker back to blank.
func cell(s string) string {
	s = strings.TrimSpace(s)
	if s == "NaN" {
		return ""
	}
	return s
}
