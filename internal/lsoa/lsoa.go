// Package lsoa cross-references survey responses with deprivation data via
// the ONS postcode directory.
package lsoa

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// Unknown labels responses whose postcode or LSOA has no decile.
const Unknown = "unknown"

// ONS postcode directory columns. Newer releases carry 2021 LSOAs.
const (
	colPostcode = "pcds"
	colLSOA21   = "lsoa21cd"
	colLSOA11   = "lsoa11cd"
)

// LoadPostcodes reads an ONS postcode lookup into a postcode -> LSOA map,
// preferring 2021 codes when both vintages are present.
func LoadPostcodes(r io.Reader) (map[string]string, error) {
	df, err := readStrings(r)
	if err != nil {
		return nil, fmt.Errorf("read postcode lookup: %w", err)
	}

	names := df.Names()
	if !contains(names, colPostcode) {
		return nil, fmt.Errorf("postcode lookup: %w: %q", domain.ErrMissingColumn, colPostcode)
	}
	lsoaCol := ""
	switch {
	case contains(names, colLSOA21):
		lsoaCol = colLSOA21
	case contains(names, colLSOA11):
		lsoaCol = colLSOA11
	default:
		return nil, fmt.Errorf("postcode lookup: %w: %q or %q", domain.ErrMissingColumn, colLSOA21, colLSOA11)
	}

	postcodes := df.Col(colPostcode).Records()
	codes := df.Col(lsoaCol).Records()
	out := make(map[string]string, len(postcodes))
	for i, pc := range postcodes {
		pc = domain.NormalizePostcode(pc)
		code := strings.TrimSpace(codes[i])
		if pc == "" || code == "" || code == "NaN" {
			continue
		}
		out[pc] = code
	}
	return out, nil
}

// LoadDeciles reads an IMD table into an LSOA -> decile map. The LSOA
// column is the first whose name starts with "lsoa code"; the decile column
// is the first whose name contains "decile". Matching ignores case, so the
// published "LSOA code (2011)" and "Index of Multiple Deprivation (IMD)
// Decile" headers work unchanged.
func LoadDeciles(r io.Reader) (map[string]int, error) {
	df, err := readStrings(r)
	if err != nil {
		return nil, fmt.Errorf("read IMD table: %w", err)
	}

	var codeCol, decileCol string
	for _, name := range df.Names() {
		lower := strings.ToLower(name)
		if codeCol == "" && strings.HasPrefix(lower, "lsoa code") {
			codeCol = name
		}
		if decileCol == "" && strings.Contains(lower, "decile") {
			decileCol = name
		}
	}
	if codeCol == "" || decileCol == "" {
		return nil, fmt.Errorf("IMD table: %w: need an LSOA code and a decile column", domain.ErrMissingColumn)
	}

	codes := df.Col(codeCol).Records()
	deciles := df.Col(decileCol).Records()
	out := make(map[string]int, len(codes))
	for i, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		d, err := strconv.Atoi(strings.TrimSpace(deciles[i]))
		if err != nil || d < 1 || d > 10 {
			return nil, fmt.Errorf("IMD table row %d: invalid decile %q", i+2, deciles[i])
		}
		out[code] = d
	}
	return out, nil
}

// DecileCount is the number of responses in one deprivation decile.
type DecileCount struct {
	Decile    string
	Responses int
}

// CountByDecile joins each response to its decile. Deciles are returned in
// ascending order with Unknown last, and the counts sum to len(responses).
func CountByDecile(responses []domain.Response, m domain.LSOAMapping) []DecileCount {
	counts := make(map[int]int)
	unknown := 0
	for _, r := range responses {
		if _, d, ok := m.Decile(r.Postcode); ok {
			counts[d]++
		} else {
			unknown++
		}
	}

	deciles := make([]int, 0, len(counts))
	for d := range counts {
		deciles = append(deciles, d)
	}
	sort.Ints(deciles)

	out := make([]DecileCount, 0, len(deciles)+1)
	for _, d := range deciles {
		out = append(out, DecileCount{Decile: strconv.Itoa(d), Responses: counts[d]})
	}
	if unknown > 0 {
		out = append(out, DecileCount{Decile: Unknown, Responses: unknown})
	}
	return out
}

// Frame lays decile counts out for CSV output.
func Frame(counts []DecileCount) dataframe.DataFrame {
	deciles := make([]string, len(counts))
	responses := make([]int, len(counts))
	for i, c := range counts {
		deciles[i] = c.Decile
		responses[i] = c.Responses
	}
	return dataframe.New(
		series.New(deciles, series.String, "decile"),
		series.New(responses, series.Int, "responses"),
	)
}

func readStrings(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return df, df.Err
	}
	if df.Nrow() == 0 {
		return df, errors.New("no rows")
	}
	return df, nil
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
