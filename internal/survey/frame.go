package survey

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Column names of the combined tally file.
const (
	colQuestion = "question"
	colLabel    = "label"
	colAnswer   = "answer"
	colCount    = "count"
	colPercent  = "percent"
	colTotal    = "Total"
)

// TallyFrame stacks tallies into one long frame with a row per answer.
func TallyFrame(tables []Table) dataframe.DataFrame {
	var questions, labels, answers, percents []string
	var counts []int
	for _, t := range tables {
		for _, r := range t.Rows {
			questions = append(questions, t.QuestionID)
			labels = append(labels, t.Label)
			answers = append(answers, r.Answer)
			counts = append(counts, r.Count)
			percents = append(percents, strconv.FormatFloat(r.Percent, 'f', 1, 64))
		}
	}
	return dataframe.New(
		series.New(questions, series.String, colQuestion),
		series.New(labels, series.String, colLabel),
		series.New(answers, series.String, colAnswer),
		series.New(counts, series.Int, colCount),
		series.New(percents, series.String, colPercent),
	)
}

// ReadTallies parses a file written from TallyFrame back into tables,
// keeping question order.
func ReadTallies(r io.Reader) ([]Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read tally csv: %w", df.Err)
	}
	if err := requireColumns(df.Names(), []string{colQuestion, colLabel, colAnswer, colCount, colPercent}); err != nil {
		return nil, err
	}

	questions := df.Col(colQuestion).Records()
	labels := df.Col(colLabel).Records()
	answers := df.Col(colAnswer).Records()
	counts := df.Col(colCount).Records()
	percents := df.Col(colPercent).Records()

	var tables []Table
	index := make(map[string]int)
	for i := range questions {
		n, err := strconv.Atoi(cell(counts[i]))
		if err != nil {
			return nil, fmt.Errorf("tally row %d: count %q: %w", i+2, counts[i], err)
		}
		p, err := strconv.ParseFloat(cell(percents[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("tally row %d: percent %q: %w", i+2, percents[i], err)
		}
		ti, ok := index[questions[i]]
		if !ok {
			ti = len(tables)
			index[questions[i]] = ti
			tables = append(tables, Table{QuestionID: questions[i], Label: cell(labels[i])})
		}
		tables[ti].Rows = append(tables[ti].Rows, Count{Answer: cell(answers[i]), Count: n, Percent: p})
		tables[ti].Total += n
	}
	return tables, nil
}

// CrossTabFrame lays a cross-tabulation out wide: one row per dimension
// value, one column per answer bucket, a Total column and a Total row.
func CrossTabFrame(ct CrossTable) dataframe.DataFrame {
	keys := make([]string, 0, len(ct.Rows)+1)
	for _, row := range ct.Rows {
		keys = append(keys, row.Key)
	}
	keys = append(keys, colTotal)

	cols := []series.Series{series.New(keys, series.String, string(ct.Dimension))}
	for j, name := range ct.Columns {
		vals := make([]int, 0, len(ct.Rows)+1)
		for _, row := range ct.Rows {
			vals = append(vals, row.Counts[j])
		}
		vals = append(vals, ct.ColumnTotals[j])
		cols = append(cols, series.New(vals, series.Int, name))
	}

	totals := make([]int, 0, len(ct.Rows)+1)
	for _, row := range ct.Rows {
		totals = append(totals, row.Total)
	}
	totals = append(totals, ct.Total)
	cols = append(cols, series.New(totals, series.Int, colTotal))

	return dataframe.New(cols...)
}

// ReadCrossTab parses a file written from CrossTabFrame back into a
// cross-tabulation of questionID by dim. The trailing Total row supplies the
// column totals and grand total.
func ReadCrossTab(r io.Reader, questionID string, dim Dimension) (CrossTable, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return CrossTable{}, fmt.Errorf("read crosstab csv: %w", df.Err)
	}
	names := df.Names()
	if len(names) < 3 || names[0] != string(dim) || names[len(names)-1] != colTotal {
		return CrossTable{}, fmt.Errorf("read crosstab csv: want columns %s,...,%s, got %v", dim, colTotal, names)
	}

	ct := CrossTable{QuestionID: questionID, Dimension: dim, Columns: names[1 : len(names)-1]}
	keys := df.Col(string(dim)).Records()
	cols := make([][]string, len(names)-1)
	for j, name := range names[1:] {
		cols[j] = df.Col(name).Records()
	}

	sawTotal := false
	for i, key := range keys {
		counts := make([]int, len(cols))
		for j := range cols {
			n, err := strconv.Atoi(cell(cols[j][i]))
			if err != nil {
				return CrossTable{}, fmt.Errorf("crosstab row %d column %q: %w", i+2, names[j+1], err)
			}
			counts[j] = n
		}
		last := len(counts) - 1
		if i == len(keys)-1 && cell(key) == colTotal {
			ct.ColumnTotals, ct.Total = counts[:last], counts[last]
			sawTotal = true
			continue
		}
		ct.Rows = append(ct.Rows, CrossRow{Key: cell(key), Counts: counts[:last], Total: counts[last]})
	}
	if !sawTotal {
		return CrossTable{}, fmt.Errorf("read crosstab csv: no %s row", colTotal)
	}
	return ct, nil
}

// TermsFrame holds term counts for one free-text question.
func TermsFrame(terms []TermCount) dataframe.DataFrame {
	words := make([]string, len(terms))
	counts := make([]int, len(terms))
	for i, t := range terms {
		words[i] = t.Term
		counts[i] = t.Count
	}
	return dataframe.New(
		series.New(words, series.String, "term"),
		series.New(counts, series.Int, colCount),
	)
}

// StreetCountsFrame holds responses per street, busiest street first.
func StreetCountsFrame(counts []StreetCount) dataframe.DataFrame {
	streets := make([]string, len(counts))
	postcodes := make([]string, len(counts))
	responses := make([]int, len(counts))
	for i, c := range counts {
		streets[i] = c.Street
		postcodes[i] = c.Postcode
		responses[i] = c.Responses
	}
	df := dataframe.New(
		series.New(streets, series.String, "street"),
		series.New(postcodes, series.String, "postcode"),
		series.New(responses, series.Int, "responses"),
	)
	if len(counts) < 2 {
		return df
	}
	// Two stable passes: by name, then by count.
	return df.Arrange(dataframe.Sort("street")).Arrange(dataframe.RevSort("responses"))
}
