// Package xlsx exports survey aggregates to an Excel workbook, one sheet per
// table.
package xlsx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/ltn-survey/internal/survey"
)

// maxSheetName is Excel's limit on sheet name length.
const maxSheetName = 31

// defaultSheet is the sheet every new excelize workbook starts with.
const defaultSheet = "Sheet1"

// Write saves every tally and cross-tab in rep to a workbook at path and
// returns the sheet names in order.
func Write(rep survey.Report, path string) ([]string, error) {
	f := excelize.NewFile()
	defer f.Close()

	w := &workbook{f: f, used: make(map[string]bool)}
	for _, t := range rep.Tallies {
		rows := [][]any{{"Answer", "Count", "Percent"}}
		for _, r := range t.Rows {
			rows = append(rows, []any{r.Answer, r.Count, round1(r.Percent)})
		}
		rows = append(rows, []any{"Total", t.Total, 100.0})
		if err := w.sheet(t.QuestionID+" "+t.Label, rows); err != nil {
			return nil, err
		}
	}

	for _, ct := range rep.CrossTabs {
		header := []any{string(ct.Dimension)}
		for _, c := range ct.Columns {
			header = append(header, c)
		}
		header = append(header, "Total")
		rows := [][]any{header}
		for _, r := range ct.Rows {
			row := []any{r.Key}
			for _, n := range r.Counts {
				row = append(row, n)
			}
			rows = append(rows, append(row, r.Total))
		}
		totals := []any{"Total"}
		for _, n := range ct.ColumnTotals {
			totals = append(totals, n)
		}
		rows = append(rows, append(totals, ct.Total))
		if err := w.sheet(fmt.Sprintf("%s by %s", ct.QuestionID, ct.Dimension), rows); err != nil {
			return nil, err
		}
	}

	if len(w.names) == 0 {
		return nil, fmt.Errorf("write workbook: no tables")
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	return w.names, nil
}

type workbook struct {
	f     *excelize.File
	used  map[string]bool
	names []string
}

// sheet adds a sheet holding rows. The first call renames the default sheet.
func (w *workbook) sheet(title string, rows [][]any) error {
	name := w.uniqueName(title)
	if len(w.names) == 0 {
		if err := w.f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("rename sheet %q: %w", name, err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %q: %w", name, err)
	}
	w.names = append(w.names, name)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write sheet %q row %d: %w", name, i+1, err)
		}
	}
	return nil
}

// uniqueName strips characters Excel forbids, truncates to 31 runes and
// appends a counter when the result is already taken. Excel compares sheet
// names case-insensitively.
func (w *workbook) uniqueName(title string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if clean == "" {
		clean = "Sheet"
	}

	name := truncate(clean, maxSheetName)
	for n := 2; w.used[strings.ToLower(name)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		name = truncate(clean, maxSheetName-len(suffix)) + suffix
	}
	w.used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r[:n]))
}

func round1(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return f
}
