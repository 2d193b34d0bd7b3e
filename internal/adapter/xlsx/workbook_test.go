package xlsx

import (
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/ltn-survey/internal/survey"
)

func testReport() survey.Report {
	return survey.Report{
		Responses: 3,
		Tallies: []survey.Table{{
			QuestionID: "Q1",
			Label:      "Do you support the Low Traffic Neighbourhood?",
			Total:      3,
			Rows: []survey.Count{
				{Answer: "Yes", Count: 2, Percent: 66.666},
				{Answer: "No", Count: 1, Percent: 33.333},
			},
		}},
		CrossTabs: []survey.CrossTable{{
			QuestionID:   "Q1",
			Dimension:    survey.BySector,
			Columns:      []string{"Yes", "No"},
			Rows:         []survey.CrossRow{{Key: "OX4 4", Counts: []int{2, 1}, Total: 3}},
			ColumnTotals: []int{2, 1},
			Total:        3,
		}},
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.xlsx")

	names, err := Write(testReport(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1 Do you support the Low Traff", "Q1 by sector"}, names)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, names, f.GetSheetList())

	rows, err := f.GetRows(names[0])
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Answer", "Count", "Percent"},
		{"Yes", "2", "66.7"},
		{"No", "1", "33.3"},
		{"Total", "3", "100"},
	}, rows)

	rows, err = f.GetRows(names[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"sector", "Yes", "No", "Total"}, rows[0])
	assert.Equal(t, []string{"Total", "2", "1", "3"}, rows[2])
}

func TestWrite_NoTables(t *testing.T) {
	_, err := Write(survey.Report{}, filepath.Join(t.TempDir(), "empty.xlsx"))
	require.Error(t, err)
}

func TestUniqueName(t *testing.T) {
	w := &workbook{used: make(map[string]bool)}

	long := "Q12 What would make walking and cycling easier for you?"
	first := w.uniqueName(long)
	second := w.uniqueName(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(first), maxSheetName)
	assert.LessOrEqual(t, utf8.RuneCountInString(second), maxSheetName)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "(2)")

	assert.Equal(t, "Q3 cars-vans", w.uniqueName("Q3 cars/vans"))
	assert.Equal(t, "Sheet", w.uniqueName("  "))
}
