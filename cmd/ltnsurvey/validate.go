package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/streets"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

// errValidationFailed is returned once the report has been printed, so main
// only needs to set the exit code.
var errValidationFailed = errors.New("validation failed")

var (
	validateTallies string
	validateResults string
	validateStreets string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check survey and street data integrity",
	Long: `Runs each check phase and prints PASS or FAIL per phase, followed by
the numbered errors of every failed phase:

  Phase 1: Schema              every response has a well-formed postcode;
                               every street in --streets has a name, a
                               well-formed postcode and a valid
                               latitude/longitude
  Phase 2: Tally integrity     each question's counts sum to the response
                               count (from --tallies when given)
  Phase 3: Crosstab integrity  the crosstab_*.csv files in --results have
                               consistent row, column and grand totals that
                               match the responses; without --results the
                               cross-tabs are recomputed, which only checks
                               the aggregation code itself

Exits non-zero when any phase fails.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&responsesPath, "responses", "", "Survey export CSV (required)")
	validateCmd.Flags().StringVar(&questionnairePath, "questionnaire", "", "Questionnaire YAML (required)")
	validateCmd.Flags().StringVar(&validateTallies, "tallies", "", "question_counts.csv written by the survey command")
	validateCmd.Flags().StringVar(&validateResults, "results", "", "Output directory written by the survey command")
	validateCmd.Flags().StringVar(&validateStreets, "streets", "", "Enriched street CSV")
	_ = validateCmd.MarkFlagRequired("responses")
	_ = validateCmd.MarkFlagRequired("questionnaire")
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== LTN Survey Integrity Validation ===")
	fmt.Fprintln(out)

	// Blank postcodes are reported by the schema phase, not fatal here.
	q, res, err := loadSurvey(responsesPath, questionnairePath, false)
	if err != nil {
		return err
	}

	var rows []domain.Street
	if validateStreets != "" {
		t, err := readStreets(validateStreets)
		if err != nil {
			return err
		}
		if rows, err = t.Streets(streets.Templars.Name); err != nil {
			return fmt.Errorf("parse %s: %w", validateStreets, err)
		}
	}

	var tallies []survey.Table
	if validateTallies != "" {
		f, err := os.Open(validateTallies)
		if err != nil {
			return fmt.Errorf("open tallies: %w", err)
		}
		tallies, err = survey.ReadTallies(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", validateTallies, err)
		}
	} else {
		for _, qu := range q.Categorical() {
			tallies = append(tallies, survey.Tally(res.Responses, qu))
		}
	}

	phases := []*phase{
		validateSchema(res, rows),
		validateTallyIntegrity(q, tallies, len(res.Responses)),
		validateCrossTabIntegrity(q, res.Responses, validateResults),
	}

	fmt.Fprintf(out, "Records: %d responses (%d dropped), %d streets, %d tallies\n",
		len(res.Responses), len(res.DroppedLines), len(rows), len(tallies))
	if code := report(out, phases); code != 0 {
		return errValidationFailed
	}
	return nil
}

// report prints phase results in the PASS/FAIL layout and returns the exit
// code.
func report(w io.Writer, phases []*phase) int {
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Schema ──

func validateSchema(res survey.LoadResult, rows []domain.Street) *phase {
	p := &phase{name: "Phase 1: Schema"}

	for _, line := range res.DroppedLines {
		p.errorf("responses line %d: postcode is blank", line)
	}
	for _, r := range res.Responses {
		switch {
		case r.Postcode == "":
			p.errorf("responses line %d: postcode is blank", r.Line)
		case !domain.ValidPostcode(r.Postcode):
			p.errorf("responses line %d: postcode %q is malformed", r.Line, r.Postcode)
		}
	}
	for i, s := range rows {
		if err := s.Validate(); err != nil {
			p.errorf("streets row %d: %v", i+2, err)
		}
	}
	return p
}

// ── Phase 2: Tally integrity ──

func validateTallyIntegrity(q domain.Questionnaire, tallies []survey.Table, rows int) *phase {
	p := &phase{name: "Phase 2: Tally integrity"}

	byID := make(map[string]survey.Table, len(tallies))
	for _, t := range tallies {
		byID[t.QuestionID] = t
	}
	for _, qu := range q.Categorical() {
		t, ok := byID[qu.ID]
		if !ok {
			p.errorf("%s: no tally", qu.ID)
			continue
		}
		if err := survey.VerifyTally(t, rows); err != nil {
			p.errorf("%v", err)
		}
	}
	return p
}

// ── Phase 3: Crosstab integrity ──

func validateCrossTabIntegrity(q domain.Questionnaire, responses []domain.Response, resultsDir string) *phase {
	p := &phase{name: "Phase 3: Crosstab integrity"}

	dims := []survey.Dimension{survey.BySector, survey.ByDistrict}
	if q.StreetColumn != "" {
		dims = append(dims, survey.ByStreet)
	}
	for _, qu := range q.Categorical() {
		found := 0
		for _, dim := range dims {
			want := survey.CrossTab(responses, qu, dim)
			if resultsDir == "" {
				if err := survey.VerifyCrossTab(want, len(responses)); err != nil {
					p.errorf("%v", err)
				}
				continue
			}

			name := survey.CrossTabFile(want)
			got, err := readCrossTab(filepath.Join(resultsDir, name), qu.ID, dim)
			if errors.Is(err, fs.ErrNotExist) {
				// The survey run did not split by this dimension.
				continue
			}
			found++
			if err != nil {
				p.errorf("%s: %v", name, err)
				continue
			}
			if err := survey.VerifyCrossTab(got, len(responses)); err != nil {
				p.errorf("%s: %v", name, err)
			}
			if !slices.Equal(got.Columns, want.Columns) {
				p.errorf("%s: answer columns %v, expected %v", name, got.Columns, want.Columns)
			} else if !slices.Equal(got.ColumnTotals, want.ColumnTotals) {
				p.errorf("%s: column totals %v, expected %v", name, got.ColumnTotals, want.ColumnTotals)
			}
		}
		if resultsDir != "" && found == 0 {
			p.errorf("%s: no cross-tab files in %s", qu.ID, resultsDir)
		}
	}
	return p
}

func readCrossTab(path, questionID string, dim survey.Dimension) (survey.CrossTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return survey.CrossTable{}, err
	}
	defer f.Close()
	return survey.ReadCrossTab(f, questionID, dim)
}
