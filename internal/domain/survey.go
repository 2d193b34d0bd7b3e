package domain

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	// NoAnswer is the tally bucket for blank answers.
	NoAnswer = "No answer"
	// OtherAnswer is the tally bucket for answers matching no option or alias.
	OtherAnswer = "Other"
)

// ErrMissingColumn is returned when an input CSV lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// QuestionKind distinguishes how answers are aggregated.
type QuestionKind string

const (
	Categorical QuestionKind = "categorical"
	FreeText    QuestionKind = "free_text"
)

// Question declares one numbered questionnaire item.
type Question struct {
	ID      string            `yaml:"id"`
	Column  string            `yaml:"column"`
	Label   string            `yaml:"label"`
	Kind    QuestionKind      `yaml:"kind"`
	Options []string          `yaml:"options,omitempty"`
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// Questionnaire describes the layout of the survey export.
type Questionnaire struct {
	Title          string     `yaml:"title"`
	IDColumn       string     `yaml:"id_column,omitempty"`
	PostcodeColumn string     `yaml:"postcode_column"`
	StreetColumn   string     `yaml:"street_column,omitempty"`
	Questions      []Question `yaml:"questions"`
}

// Response is one respondent's cleaned answers, keyed by question ID.
type Response struct {
	ID       string
	Line     int
	Postcode string
	Street   string
	Answers  map[string]string
}

// ParseQuestionnaire decodes and validates a YAML questionnaire.
func ParseQuestionnaire(r io.Reader) (Questionnaire, error) {
	var q Questionnaire
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&q); err != nil {
		return Questionnaire{}, fmt.Errorf("parse questionnaire: %w", err)
	}
	if err := q.Validate(); err != nil {
		return Questionnaire{}, err
	}
	return q, nil
}

// Validate checks that the questionnaire is internally consistent.
func (q Questionnaire) Validate() error {
	if strings.TrimSpace(q.PostcodeColumn) == "" {
		return errors.New("questionnaire: postcode_column is required")
	}
	if len(q.Questions) == 0 {
		return errors.New("questionnaire: no questions declared")
	}

	seen := make(map[string]bool, len(q.Questions))
	files := make(map[string]string, len(q.Questions))
	for i, qu := range q.Questions {
		if qu.ID == "" || qu.Column == "" {
			return fmt.Errorf("questionnaire: question %d needs id and column", i+1)
		}
		if seen[qu.ID] {
			return fmt.Errorf("questionnaire: duplicate question id %q", qu.ID)
		}
		seen[qu.ID] = true
		// Output files are named after the ID, so IDs must stay distinct
		// once reduced to a file name.
		key := FileSafe(qu.ID)
		if other, ok := files[key]; ok {
			return fmt.Errorf("questionnaire: question ids %q and %q share output name %q", other, qu.ID, key)
		}
		files[key] = qu.ID

		switch qu.Kind {
		case Categorical:
			if err := qu.validateOptions(); err != nil {
				return err
			}
		case FreeText:
		default:
			return fmt.Errorf("questionnaire: question %q has unknown kind %q", qu.ID, qu.Kind)
		}
	}
	return nil
}

// Question returns the question with the given ID.
func (q Questionnaire) Question(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// Categorical returns the categorical questions in declaration order.
func (q Questionnaire) Categorical() []Question {
	var out []Question
	for _, qu := range q.Questions {
		if qu.Kind == Categorical {
			out = append(out, qu)
		}
	}
	return out
}

// FreeTextQuestions returns the free-text questions in declaration order.
func (q Questionnaire) FreeTextQuestions() []Question {
	var out []Question
	for _, qu := range q.Questions {
		if qu.Kind == FreeText {
			out = append(out, qu)
		}
	}
	return out
}

// Canonicalize maps a raw answer to an option, NoAnswer or OtherAnswer.
// Free-text answers are returned trimmed, or NoAnswer when blank.
func (qu Question) Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoAnswer
	}
	if qu.Kind == FreeText {
		return raw
	}
	for _, opt := range qu.Options {
		if strings.EqualFold(opt, raw) {
			return opt
		}
	}
	if opt, ok := qu.Aliases[raw]; ok {
		return opt
	}
	for alias, opt := range qu.Aliases {
		if strings.EqualFold(alias, raw) {
			return opt
		}
	}
	return OtherAnswer
}

// Buckets returns the tally buckets for a categorical question in report
// order: declared options, then OtherAnswer, then NoAnswer.
func (qu Question) Buckets() []string {
	out := make([]string, 0, len(qu.Options)+2)
	out = append(out, qu.Options...)
	return append(out, OtherAnswer, NoAnswer)
}

// validateOptions rejects options and aliases that would make answers land
// in an ambiguous bucket.
func (qu Question) validateOptions() error {
	if len(qu.Options) == 0 {
		return fmt.Errorf("questionnaire: categorical question %q has no options", qu.ID)
	}
	for i, opt := range qu.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("questionnaire: question %q has a blank option", qu.ID)
		}
		if strings.EqualFold(opt, OtherAnswer) || strings.EqualFold(opt, NoAnswer) {
			return fmt.Errorf("questionnaire: question %q option %q is a reserved bucket name", qu.ID, opt)
		}
		for _, prev := range qu.Options[:i] {
			if strings.EqualFold(prev, opt) {
				return fmt.Errorf("questionnaire: question %q has duplicate option %q", qu.ID, opt)
			}
		}
	}

	aliases := make(map[string]string, len(qu.Aliases))
	for raw, opt := range qu.Aliases {
		if !qu.hasOption(opt) {
			return fmt.Errorf("questionnaire: question %q alias %q targets unknown option %q", qu.ID, raw, opt)
		}
		folded := strings.ToLower(strings.TrimSpace(raw))
		if prev, ok := aliases[folded]; ok {
			return fmt.Errorf("questionnaire: question %q aliases %q and %q differ only in case", qu.ID, prev, raw)
		}
		aliases[folded] = raw
	}
	return nil
}

func (qu Question) hasOption(opt string) bool {
	for _, o := range qu.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// FileSafe lower-cases s and replaces anything but letters and digits with
// an underscore, for use in output file names.
func FileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '_'
	}, s)
}
