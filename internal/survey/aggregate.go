package survey

import (
	"sort"
	"strings"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// UnknownStreet labels responses that gave no street.
const UnknownStreet = "(unknown)"

// Count is one answer bucket of a tally.
type Count struct {
	Answer  string
	Count   int
	Percent float64
}

// Table is the tally of one categorical question.
type Table struct {
	QuestionID string
	Label      string
	Total      int
	Rows       []Count
}

// Sum returns the sum of all bucket counts.
func (t Table) Sum() int {
	n := 0
	for _, r := range t.Rows {
		n += r.Count
	}
	return n
}

// Tally counts each response's canonical answer to qu. Every response lands
// in exactly one bucket, so the counts always sum to len(responses).
func Tally(responses []domain.Response, qu domain.Question) Table {
	buckets := qu.Buckets()
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b] = i
	}

	counts := make([]int, len(buckets))
	for _, r := range responses {
		i, ok := index[r.Answers[qu.ID]]
		if !ok {
			i = index[bucketFor(r.Answers[qu.ID])]
		}
		counts[i]++
	}

	t := Table{QuestionID: qu.ID, Label: qu.Label, Total: len(responses), Rows: make([]Count, len(buckets))}
	for i, b := range buckets {
		t.Rows[i] = Count{Answer: b, Count: counts[i], Percent: percent(counts[i], len(responses))}
	}
	return t
}

// bucketFor places an answer that is not one of the declared buckets.
// Missing answers are NoAnswer; anything else is OtherAnswer.
func bucketFor(answer string) string {
	if answer == "" {
		return domain.NoAnswer
	}
	return domain.OtherAnswer
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// Dimension is a way of splitting respondents for cross-tabulation.
type Dimension string

const (
	BySector   Dimension = "sector"
	ByDistrict Dimension = "district"
	ByStreet   Dimension = "street"
)

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, bool) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case BySector, ByDistrict, ByStreet:
		return d, true
	default:
		return "", false
	}
}

func (d Dimension) key(r domain.Response) string {
	switch d {
	case ByDistrict:
		return domain.PostcodeDistrict(r.Postcode)
	case ByStreet:
		if r.Street == "" {
			return UnknownStreet
		}
		return r.Street
	default:
		return domain.PostcodeSector(r.Postcode)
	}
}

// CrossRow is one dimension value's answer counts.
type CrossRow struct {
	Key    string
	Counts []int
	Total  int
}

// CrossTable is a question-by-dimension contingency table.
type CrossTable struct {
	QuestionID   string
	Dimension    Dimension
	Columns      []string
	Rows         []CrossRow
	ColumnTotals []int
	Total        int
}

// CrossTab splits the answers to qu by dimension. Rows are sorted by key;
// columns follow the question's bucket order.
func CrossTab(responses []domain.Response, qu domain.Question, dim Dimension) CrossTable {
	buckets := qu.Buckets()
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b] = i
	}

	rows := make(map[string]*CrossRow)
	for _, r := range responses {
		k := dim.key(r)
		row, ok := rows[k]
		if !ok {
			row = &CrossRow{Key: k, Counts: make([]int, len(buckets))}
			rows[k] = row
		}
		i, ok := index[r.Answers[qu.ID]]
		if !ok {
			i = index[bucketFor(r.Answers[qu.ID])]
		}
		row.Counts[i]++
		row.Total++
	}

	ct := CrossTable{
		QuestionID:   qu.ID,
		Dimension:    dim,
		Columns:      buckets,
		Rows:         make([]CrossRow, 0, len(rows)),
		ColumnTotals: make([]int, len(buckets)),
	}
	for _, row := range rows {
		ct.Rows = append(ct.Rows, *row)
		for i, c := range row.Counts {
			ct.ColumnTotals[i] += c
		}
		ct.Total += row.Total
	}
	sort.Slice(ct.Rows, func(i, j int) bool { return ct.Rows[i].Key < ct.Rows[j].Key })
	return ct
}

// StreetCount is the number of responses from one street.
type StreetCount struct {
	Street    string
	Postcode  string
	Responses int
}

// StreetCounts groups responses by street name, case-insensitively. The
// first spelling and the most common postcode seen for a street are kept.
// Responses without a street are skipped.
func StreetCounts(responses []domain.Response) []StreetCount {
	type acc struct {
		name      string
		count     int
		postcodes map[string]int
	}
	byKey := make(map[string]*acc)
	var order []string
	for _, r := range responses {
		if r.Street == "" {
			continue
		}
		k := strings.ToLower(r.Street)
		a, ok := byKey[k]
		if !ok {
			a = &acc{name: r.Street, postcodes: make(map[string]int)}
			byKey[k] = a
			order = append(order, k)
		}
		a.count++
		a.postcodes[r.Postcode]++
	}

	out := make([]StreetCount, 0, len(order))
	for _, k := range order {
		a := byKey[k]
		out = append(out, StreetCount{Street: a.name, Postcode: mostCommon(a.postcodes), Responses: a.count})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Responses != out[j].Responses {
			return out[i].Responses > out[j].Responses
		}
		return out[i].Street < out[j].Street
	})
	return out
}

// mostCommon returns the highest-count key, breaking ties alphabetically.
func mostCommon(m map[string]int) string {
	best, bestN := "", -1
	for k, n := range m {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
