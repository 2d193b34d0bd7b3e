package survey

import (
	"sort"
	"strings"
	"unicode"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// minTermLength drops short tokens such as "a", "of" and stray initials.
const minTermLength = 3

// stopWords are common English words excluded from term counts.
var stopWords = map[string]bool{
	"about": true, "after": true, "all": true, "also": true, "and": true, "any": true,
	"are": true, "because": true, "been": true, "before": true, "but": true, "can": true,
	"could": true, "did": true, "does": true, "don't": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "her": true, "his": true, "how": true,
	"into": true, "it's": true, "its": true, "just": true, "more": true, "much": true,
	"not": true, "now": true, "our": true, "out": true, "over": true, "should": true,
	"some": true, "than": true, "that": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "they": true, "this": true, "very": true, "was": true,
	"were": true, "what": true, "when": true, "which": true, "who": true, "will": true,
	"with": true, "would": true, "you": true, "your": true,
}

// TermCount is the number of responses using a term.
type TermCount struct {
	Term  string
	Count int
}

// Terms counts lower-cased words across the free-text answers to qu.
// Each term is counted at most once per response. Results are ordered by
// count descending, then term; topN <= 0 returns everything.
func Terms(responses []domain.Response, qu domain.Question, topN int) []TermCount {
	counts := make(map[string]int)
	for _, r := range responses {
		answer := r.Answers[qu.ID]
		if answer == "" || answer == domain.NoAnswer {
			continue
		}
		seen := make(map[string]bool)
		for _, tok := range tokenize(answer) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			counts[tok]++
		}
	}

	out := make([]TermCount, 0, len(counts))
	for term, n := range counts {
		out = append(out, TermCount{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < minTermLength || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
