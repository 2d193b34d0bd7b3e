package survey

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// TallyFile is the name of the combined tally CSV inside an output directory.
const TallyFile = "question_counts.csv"

// StreetCountsFile is the name of the per-street response count CSV.
const StreetCountsFile = "street_counts.csv"

// AnalyzeOptions selects the optional parts of a report.
type AnalyzeOptions struct {
	Dimensions []Dimension
	TopTerms   int
}

// FreeTextSummary is the term count of one free-text question.
type FreeTextSummary struct {
	QuestionID string
	Label      string
	Answered   int
	Terms      []TermCount
}

// Report is every aggregate computed from one survey load.
type Report struct {
	Responses int
	Dropped   int
	Tallies   []Table
	CrossTabs []CrossTable
	FreeText  []FreeTextSummary
	Streets   []StreetCount
}

// Analyze computes tallies for every categorical question, a cross-tab per
// categorical question and dimension, term counts for free-text questions,
// and per-street response counts.
func Analyze(res LoadResult, q domain.Questionnaire, opts AnalyzeOptions) Report {
	rep := Report{Responses: len(res.Responses), Dropped: len(res.DroppedLines)}

	for _, qu := range q.Categorical() {
		rep.Tallies = append(rep.Tallies, Tally(res.Responses, qu))
		for _, dim := range opts.Dimensions {
			rep.CrossTabs = append(rep.CrossTabs, CrossTab(res.Responses, qu, dim))
		}
	}

	for _, qu := range q.FreeTextQuestions() {
		answered := 0
		for _, r := range res.Responses {
			if r.Answers[qu.ID] != domain.NoAnswer {
				answered++
			}
		}
		rep.FreeText = append(rep.FreeText, FreeTextSummary{
			QuestionID: qu.ID,
			Label:      qu.Label,
			Answered:   answered,
			Terms:      Terms(res.Responses, qu, opts.TopTerms),
		})
	}

	if q.StreetColumn != "" {
		rep.Streets = StreetCounts(res.Responses)
	}
	return rep
}

// WriteCSVs writes the report's tables into dir and returns the paths
// written, in order.
func (r Report) WriteCSVs(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	write := func(name string, df dataframe.DataFrame) error {
		path := filepath.Join(dir, name)
		if err := WriteFrame(path, df); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write(TallyFile, TallyFrame(r.Tallies)); err != nil {
		return written, err
	}
	for _, ct := range r.CrossTabs {
		if err := write(CrossTabFile(ct), CrossTabFrame(ct)); err != nil {
			return written, err
		}
	}
	for _, ft := range r.FreeText {
		if err := write("terms_"+domain.FileSafe(ft.QuestionID)+".csv", TermsFrame(ft.Terms)); err != nil {
			return written, err
		}
	}
	if len(r.Streets) > 0 {
		if err := write(StreetCountsFile, StreetCountsFrame(r.Streets)); err != nil {
			return written, err
		}
	}
	return written, nil
}

// CrossTabFile names the CSV holding ct.
func CrossTabFile(ct CrossTable) string {
	return fmt.Sprintf("crosstab_%s_by_%s.csv", domain.FileSafe(ct.QuestionID), ct.Dimension)
}

// WriteFrame writes df as CSV to path.
func WriteFrame(path string, df dataframe.DataFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := df.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// VerifyTally checks that a tally accounts for every response exactly once.
func VerifyTally(t Table, rows int) error {
	if sum := t.Sum(); sum != rows {
		return fmt.Errorf("%s: counts sum to %d, expected %d", t.QuestionID, sum, rows)
	}
	return nil
}

// VerifyCrossTab checks the row, column and grand totals of a cross-tab.
func VerifyCrossTab(ct CrossTable, rows int) error {
	if ct.Total != rows {
		return fmt.Errorf("%s by %s: grand total %d, expected %d", ct.QuestionID, ct.Dimension, ct.Total, rows)
	}
	colSum := 0
	for _, c := range ct.ColumnTotals {
		colSum += c
	}
	if colSum != ct.Total {
		return fmt.Errorf("%s by %s: column totals sum to %d, grand total %d", ct.QuestionID, ct.Dimension, colSum, ct.Total)
	}
	for _, row := range ct.Rows {
		n := 0
		for _, c := range row.Counts {
			n += c
		}
		if n != row.Total {
			return fmt.Errorf("%s by %s: row %q sums to %d, total %d", ct.QuestionID, ct.Dimension, row.Key, n, row.Total)
		}
	}
	return nil
}

// ChartFile names the PNG bar chart of t.
func ChartFile(t Table) string {
	return "tally_" + domain.FileSafe(t.QuestionID) + ".png"
}
