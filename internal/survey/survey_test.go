package survey_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

const questionnaireYAML = `
title: Littlemore LTN survey
postcode_column: Postcode
street_column: Street
questions:
  - id: Q1
    column: "1. Do you support the LTN?"
    label: Support for the LTN
    kind: categorical
    options: ["Yes", "No", "Not sure"]
    aliases:
      y: "Yes"
      n: "No"
  - id: Q5
    column: "5. Any other comments?"
    label: Other comments
    kind: free_text
`

const responsesCSV = `Postcode,Street,1. Do you support the LTN?,5. Any other comments?
ox44pu,Chapel Lane,yes,Too much traffic on Oxford Road
OX4 4PU,chapel lane,N,traffic is worse
,Sandy Lane,Yes,
OX4 3ST,Littlemore Road,maybe,
ox4 4pw,,,"Traffic, traffic everywhere"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFixture(t *testing.T) (survey.LoadResult, domain.Questionnaire) {
	t.Helper()
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)
	res, err := survey.Load(strings.NewReader(responsesCSV), q, survey.LoadOptions{}, testLogger())
	require.NoError(t, err)
	return res, q
}

func question(t *testing.T, q domain.Questionnaire, id string) domain.Question {
	t.Helper()
	qu, ok := q.Question(id)
	require.True(t, ok, "question %s", id)
	return qu
}

func TestLoad_DropsBlankPostcodes(t *testing.T) {
	res, _ := loadFixture(t)

	assert.Equal(t, []int{4}, res.DroppedLines)
	require.Len(t, res.Responses, 4)

	first := res.Responses[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "OX4 4PU", first.Postcode)
	assert.Equal(t, "Chapel Lane", first.Street)
	assert.Equal(t, "Yes", first.Answers["Q1"])

	last := res.Responses[3]
	assert.Equal(t, "5", last.ID)
	assert.Equal(t, "OX4 4PW", last.Postcode)
	assert.Equal(t, domain.NoAnswer, last.Answers["Q1"])
	assert.Equal(t, "Traffic, traffic everywhere", last.Answers["Q5"])
}

func TestLoad_Strict(t *testing.T) {
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)

	_, err = survey.Load(strings.NewReader(responsesCSV), q, survey.LoadOptions{Strict: true}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line(s) 4")
}

func TestLoad_MissingColumn(t *testing.T) {
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)

	csv := "Postcode,Street\nOX4 4PU,Chapel Lane\n"
	_, err = survey.Load(strings.NewReader(csv), q, survey.LoadOptions{}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingColumn))
	assert.Contains(t, err.Error(), `"1. Do you support the LTN?"`)
	assert.Contains(t, err.Error(), `"5. Any other comments?"`)
}

func TestLoad_StripsByteOrderMark(t *testing.T) {
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)

	res, err := survey.Load(strings.NewReader("\ufeff"+responsesCSV), q, survey.LoadOptions{}, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Responses, 4)
	assert.Equal(t, "OX4 4PU", res.Responses[0].Postcode)

	quoted := "\ufeff\"Postcode\"" + strings.TrimPrefix(responsesCSV, "Postcode")
	res, err = survey.Load(strings.NewReader(quoted), q, survey.LoadOptions{}, testLogger())
	require.NoError(t, err)
	assert.Len(t, res.Responses, 4)
}

func TestLoad_HeaderOnly(t *testing.T) {
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)

	header := strings.SplitN(responsesCSV, "\n", 2)[0] + "\n"
	res, err := survey.Load(strings.NewReader(header), q, survey.LoadOptions{Strict: true}, testLogger())
	require.NoError(t, err)
	assert.Empty(t, res.Responses)
	assert.Empty(t, res.DroppedLines)

	_, err = survey.Load(strings.NewReader(""), q, survey.LoadOptions{}, testLogger())
	require.Error(t, err)
}

func TestLoad_MalformedPostcodeKept(t *testing.T) {
	q, err := domain.ParseQuestionnaire(strings.NewReader(questionnaireYAML))
	require.NoError(t, err)

	csv := "Postcode,Street,1. Do you support the LTN?,5. Any other comments?\nLittlemore,Chapel Lane,yes,\n"
	res, err := survey.Load(strings.NewReader(csv), q, survey.LoadOptions{Strict: true}, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)
	assert.False(t, domain.ValidPostcode(res.Responses[0].Postcode))
}

func TestTally(t *testing.T) {
	res, q := loadFixture(t)

	table := survey.Tally(res.Responses, question(t, q, "Q1"))

	want := []survey.Count{
		{Answer: "Yes", Count: 1, Percent: 25},
		{Answer: "No", Count: 1, Percent: 25},
		{Answer: "Not sure", Count: 0, Percent: 0},
		{Answer: domain.OtherAnswer, Count: 1, Percent: 25},
		{Answer: domain.NoAnswer, Count: 1, Percent: 25},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, table.Total)
	require.NoError(t, survey.VerifyTally(table, len(res.Responses)))
}

func TestTally_OtherBucketIsSingle(t *testing.T) {
	_, err := domain.ParseQuestionnaire(strings.NewReader(
		"postcode_column: Postcode\nquestions: [{id: Q2, column: Mode, kind: categorical, options: [Car, Other]}]"))
	require.Error(t, err, "a declared option may not shadow the Other bucket")

	q, err := domain.ParseQuestionnaire(strings.NewReader(
		"postcode_column: Postcode\nquestions: [{id: Q2, column: Mode, kind: categorical, options: [Car]}]"))
	require.NoError(t, err)
	csv := "Postcode,Mode\nOX4 4PU,other\nOX4 4PU,bus\n"
	res, err := survey.Load(strings.NewReader(csv), q, survey.LoadOptions{}, testLogger())
	require.NoError(t, err)

	qu := question(t, q, "Q2")
	table := survey.Tally(res.Responses, qu)
	want := []survey.Count{
		{Answer: "Car", Count: 0, Percent: 0},
		{Answer: domain.OtherAnswer, Count: 2, Percent: 100},
		{Answer: domain.NoAnswer, Count: 0, Percent: 0},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}

	df := survey.CrossTabFrame(survey.CrossTab(res.Responses, qu, survey.BySector))
	assert.Equal(t, []string{"sector", "Car", "Other", "No answer", "Total"}, df.Names())
}

func TestTally_Empty(t *testing.T) {
	_, q := loadFixture(t)

	table := survey.Tally(nil, question(t, q, "Q1"))
	assert.Equal(t, 0, table.Sum())
	for _, r := range table.Rows {
		assert.Zero(t, r.Percent)
	}
}

func TestCrossTab_BySector(t *testing.T) {
	res, q := loadFixture(t)

	ct := survey.CrossTab(res.Responses, question(t, q, "Q1"), survey.BySector)

	want := []survey.CrossRow{
		{Key: "OX4 3", Counts: []int{0, 0, 0, 1, 0}, Total: 1},
		{Key: "OX4 4", Counts: []int{1, 1, 0, 0, 1}, Total: 3},
	}
	if diff := cmp.Diff(want, ct.Rows); diff != "" {
		t.Errorf("crosstab mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{1, 1, 0, 1, 1}, ct.ColumnTotals)
	assert.Equal(t, 4, ct.Total)
	require.NoError(t, survey.VerifyCrossTab(ct, 4))
}

func TestCrossTab_ByStreet(t *testing.T) {
	res, q := loadFixture(t)

	ct := survey.CrossTab(res.Responses, question(t, q, "Q1"), survey.ByStreet)

	keys := make([]string, len(ct.Rows))
	for i, r := range ct.Rows {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"(unknown)", "Chapel Lane", "Littlemore Road", "chapel lane"}, keys)
}

func TestVerifyCrossTab_Mismatch(t *testing.T) {
	ct := survey.CrossTable{
		QuestionID:   "Q1",
		Dimension:    survey.ByDistrict,
		Columns:      []string{"Yes", "No"},
		Rows:         []survey.CrossRow{{Key: "OX4", Counts: []int{2, 1}, Total: 4}},
		ColumnTotals: []int{2, 1},
		Total:        4,
	}
	err := survey.VerifyCrossTab(ct, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column totals")

	err = survey.VerifyCrossTab(ct, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grand total 4, expected 5")
}

func TestParseDimension(t *testing.T) {
	d, ok := survey.ParseDimension(" District ")
	assert.True(t, ok)
	assert.Equal(t, survey.ByDistrict, d)

	_, ok = survey.ParseDimension("ward")
	assert.False(t, ok)
}

func TestTerms(t *testing.T) {
	res, q := loadFixture(t)

	got := survey.Terms(res.Responses, question(t, q, "Q5"), 0)
	want := []survey.TermCount{
		{Term: "traffic", Count: 3},
		{Term: "everywhere", Count: 1},
		{Term: "oxford", Count: 1},
		{Term: "road", Count: 1},
		{Term: "too", Count: 1},
		{Term: "worse", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}

	top := survey.Terms(res.Responses, question(t, q, "Q5"), 2)
	assert.Equal(t, []survey.TermCount{{Term: "traffic", Count: 3}, {Term: "everywhere", Count: 1}}, top)
}

func TestStreetCounts(t *testing.T) {
	res, _ := loadFixture(t)

	got := survey.StreetCounts(res.Responses)
	want := []survey.StreetCount{
		{Street: "Chapel Lane", Postcode: "OX4 4PU", Responses: 2},
		{Street: "Littlemore Road", Postcode: "OX4 3ST", Responses: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("street counts mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeAndWriteCSVs(t *testing.T) {
	res, q := loadFixture(t)

	rep := survey.Analyze(res, q, survey.AnalyzeOptions{
		Dimensions: []survey.Dimension{survey.BySector, survey.ByDistrict},
		TopTerms:   10,
	})
	assert.Equal(t, 4, rep.Responses)
	assert.Equal(t, 1, rep.Dropped)
	require.Len(t, rep.Tallies, 1)
	require.Len(t, rep.CrossTabs, 2)
	require.Len(t, rep.FreeText, 1)
	assert.Equal(t, 3, rep.FreeText[0].Answered)
	assert.Len(t, rep.Streets, 2)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := rep.WriteCSVs(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"question_counts.csv",
		"crosstab_q1_by_sector.csv",
		"crosstab_q1_by_district.csv",
		"terms_q5.csv",
		"street_counts.csv",
	}, names)

	raw, err := os.ReadFile(filepath.Join(dir, survey.TallyFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "question,label,answer,count,percent", lines[0])
	assert.Equal(t, "Q1,Support for the LTN,Yes,1,25.0", lines[1])

	f, err := os.Open(filepath.Join(dir, survey.TallyFile))
	require.NoError(t, err)
	defer f.Close()
	tables, err := survey.ReadTallies(f)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, 4, tables[0].Total)
	require.NoError(t, survey.VerifyTally(tables[0], rep.Responses))
}

func TestCrossTabFrame(t *testing.T) {
	res, q := loadFixture(t)

	df := survey.CrossTabFrame(survey.CrossTab(res.Responses, question(t, q, "Q1"), survey.ByDistrict))

	assert.Equal(t, []string{"district", "Yes", "No", "Not sure", "Other", "No answer", "Total"}, df.Names())
	assert.Equal(t, []string{"OX4", "Total"}, df.Col("district").Records())
	assert.Equal(t, []string{"4", "4"}, df.Col("Total").Records())
}

func TestStreetCountsFrame_Sorted(t *testing.T) {
	df := survey.StreetCountsFrame([]survey.StreetCount{
		{Street: "Sandy Lane", Postcode: "OX4 6LX", Responses: 1},
		{Street: "Chapel Lane", Postcode: "OX4 4PU", Responses: 3},
		{Street: "Beauchamp Lane", Postcode: "OX4 3LF", Responses: 1},
	})

	assert.Equal(t, []string{"Chapel Lane", "Beauchamp Lane", "Sandy Lane"}, df.Col("street").Records())
}

func TestReadTallies_BadCount(t *testing.T) {
	csv := "question,label,answer,count,percent\nQ1,Support,Yes,lots,10.0\n"
	_, err := survey.ReadTallies(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count")
}
