// Package survey loads questionnaire responses and aggregates them into
// tallies, cross-tabulations and free-text term counts.
package survey

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// lineColumn carries the source CSV line number through filtering.
const lineColumn = "__line"

// LoadOptions controls how strictly rows are validated.
type LoadOptions struct {
	// Strict rejects the whole file when any row has a blank postcode.
	// Otherwise such rows are dropped and reported.
	Strict bool
}

// LoadResult holds the cleaned responses and what was discarded.
type LoadResult struct {
	Responses    []domain.Response
	DroppedLines []int
}

// Load reads a survey export, checks its columns against the questionnaire,
// and returns cleaned responses in file order.
func Load(r io.Reader, q domain.Questionnaire, opts LoadOptions, logger *slog.Logger) (LoadResult, error) {
	records, err := readRecords(r)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read survey csv: %w", err)
	}
	if err := requireColumns(records[0], requiredColumns(q)); err != nil {
		return LoadResult{}, err
	}
	if len(records) == 1 {
		logger.Warn("survey export has a header but no responses")
		return LoadResult{Responses: []domain.Response{}}, nil
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return LoadResult{}, fmt.Errorf("read survey csv: %w", df.Err)
	}

	df, dropped := dropBlankPostcodes(df, q.PostcodeColumn)
	if len(dropped) > 0 {
		if opts.Strict {
			return LoadResult{}, fmt.Errorf("blank postcode on line(s) %s", joinInts(dropped))
		}
		logger.Warn("dropping responses without a postcode", "count", len(dropped), "lines", joinInts(dropped))
	}

	columns := make(map[string][]string, df.Ncol())
	for _, name := range df.Names() {
		columns[name] = df.Col(name).Records()
	}

	lines := columns[lineColumn]
	responses := make([]domain.Response, 0, df.Nrow())
	var malformed []int
	for i := 0; i < df.Nrow(); i++ {
		line, _ := strconv.Atoi(lines[i])
		resp := domain.Response{
			ID:       strconv.Itoa(line - 1),
			Line:     line,
			Postcode: columns[q.PostcodeColumn][i],
			Answers:  make(map[string]string, len(q.Questions)),
		}
		if !domain.ValidPostcode(resp.Postcode) {
			malformed = append(malformed, line)
		}
		if q.IDColumn != "" {
			if id := cell(columns[q.IDColumn][i]); id != "" {
				resp.ID = id
			}
		}
		if q.StreetColumn != "" {
			resp.Street = cell(columns[q.StreetColumn][i])
		}
		for _, qu := range q.Questions {
			resp.Answers[qu.ID] = qu.Canonicalize(cell(columns[qu.Column][i]))
		}
		responses = append(responses, resp)
	}

	if len(malformed) > 0 {
		logger.Warn("responses with malformed postcodes", "count", len(malformed), "lines", joinInts(malformed))
	}
	logger.Info("survey loaded", "responses", len(responses), "dropped", len(dropped))
	return LoadResult{Responses: responses, DroppedLines: dropped}, nil
}

// utf8BOM is the byte order mark spreadsheet exports put before the header.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readRecords reads every CSV record, skipping a leading byte order mark.
func readRecords(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	records, err := csv.NewReader(br).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("no header row")
	}
	return records, nil
}

// dropBlankPostcodes normalises the postcode column in place, tags each row
// with its CSV line, and filters out rows whose postcode is blank.
func dropBlankPostcodes(df dataframe.DataFrame, postcodeColumn string) (dataframe.DataFrame, []int) {
	postcodes := df.Col(postcodeColumn).Records()
	lines := make([]int, len(postcodes))
	var dropped []int
	for i := range postcodes {
		postcodes[i] = domain.NormalizePostcode(cell(postcodes[i]))
		lines[i] = i + 2 // header is line 1
		if postcodes[i] == "" {
			dropped = append(dropped, lines[i])
		}
	}

	df = df.Mutate(series.New(postcodes, series.String, postcodeColumn)).
		Mutate(series.New(lines, series.Int, lineColumn))
	if len(dropped) == 0 {
		return df, nil
	}
	return df.Filter(dataframe.F{Colname: postcodeColumn, Comparator: series.Neq, Comparando: ""}), dropped
}

func requiredColumns(q domain.Questionnaire) []string {
	cols := []string{q.PostcodeColumn}
	if q.IDColumn != "" {
		cols = append(cols, q.IDColumn)
	}
	if q.StreetColumn != "" {
		cols = append(cols, q.StreetColumn)
	}
	for _, qu := range q.Questions {
		cols = append(cols, qu.Column)
	}
	return cols
}

func requireColumns(have, want []string) error {
	present := make(map[string]bool, len(have))
	for _, h := range have {
		present[h] = true
	}
	var missing []string
	for _, w := range want {
		if !present[w] {
			missing = append(missing, strconv.Quote(w))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// cell trims a value and maps gota's NaN marker back to blank.
func cell(s string) string {
	s = strings.TrimSpace(s)
	if s == "NaN" {
		return ""
	}
	return s
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
