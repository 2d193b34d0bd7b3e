package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	kafkaadapter "github.com/couchcryptid/ltn-survey/internal/adapter/kafka"
	"github.com/couchcryptid/ltn-survey/internal/adapter/xlsx"
	"github.com/couchcryptid/ltn-survey/internal/chart"
	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

// manifestFile lists what a survey run wrote.
const manifestFile = "manifest.json"

var (
	responsesPath     string
	questionnairePath string
	strictLoad        bool

	surveyOut      string
	surveyBy       []string
	surveyTopTerms int
	surveyCharts   bool
	surveyXLSX     string
)

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Aggregate survey responses into tables and charts",
	Long: `Loads the responses export, drops rows without a postcode (or fails
with --strict), and writes into --out:

  question_counts.csv          one row per answer of every categorical question
  crosstab_<q>_by_<dim>.csv    answers split by postcode sector, district or street
  terms_<q>.csv                word counts for free-text questions
  street_counts.csv            responses per street
  tally_<q>.png                a bar chart per question (--charts)
  manifest.json                run ID, counts and files written

and, unless --xlsx is empty, a workbook with one sheet per table. Tallies are
also published to Kafka when KAFKA_BROKERS is set.`,
	Args: cobra.NoArgs,
	RunE: runSurvey,
}

func init() {
	surveyCmd.Flags().StringVar(&responsesPath, "responses", "", "Survey export CSV (required)")
	surveyCmd.Flags().StringVar(&questionnairePath, "questionnaire", "", "Questionnaire YAML (required)")
	surveyCmd.Flags().BoolVar(&strictLoad, "strict", false, "Fail on rows without a postcode instead of dropping them")
	surveyCmd.Flags().StringVar(&surveyOut, "out", "results", "Output directory")
	surveyCmd.Flags().StringSliceVar(&surveyBy, "by", []string{string(survey.BySector)}, "Cross-tab dimensions: sector, district, street")
	surveyCmd.Flags().IntVar(&surveyTopTerms, "top-terms", 25, "Terms kept per free-text question (0 = all)")
	surveyCmd.Flags().BoolVar(&surveyCharts, "charts", true, "Draw a bar chart per question")
	surveyCmd.Flags().StringVar(&surveyXLSX, "xlsx", "survey.xlsx", "Workbook file name inside --out (empty to skip)")
	_ = surveyCmd.MarkFlagRequired("responses")
	_ = surveyCmd.MarkFlagRequired("questionnaire")
}

// manifest records one survey run.
type manifest struct {
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Responses     string    `json:"responses"`
	Questionnaire string    `json:"questionnaire"`
	Rows          int       `json:"rows"`
	DroppedLines  []int     `json:"dropped_lines"`
	Files         []string  `json:"files"`
	Published     bool      `json:"published"`
}

func runSurvey(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	dims, err := parseDimensions(surveyBy)
	if err != nil {
		return err
	}

	q, res, err := loadSurvey(responsesPath, questionnairePath, strictLoad)
	if err != nil {
		return err
	}

	rep := survey.Analyze(res, q, survey.AnalyzeOptions{Dimensions: dims, TopTerms: surveyTopTerms})
	logger.Info("survey analysed",
		"responses", rep.Responses,
		"dropped", rep.Dropped,
		"tallies", len(rep.Tallies),
		"crosstabs", len(rep.CrossTabs),
		"free_text", len(rep.FreeText),
	)

	files, err := rep.WriteCSVs(surveyOut)
	metrics.TablesWritten.Add(float64(len(files)))
	if err != nil {
		return err
	}

	if surveyCharts {
		for _, t := range rep.Tallies {
			path := filepath.Join(surveyOut, survey.ChartFile(t))
			if err := chart.Bar(t, path); err != nil {
				logger.Warn("chart skipped", "question", t.QuestionID, "error", err)
				continue
			}
			files = append(files, path)
		}
	}

	if surveyXLSX != "" {
		path := filepath.Join(surveyOut, surveyXLSX)
		sheets, err := xlsx.Write(rep, path)
		if err != nil {
			return err
		}
		logger.Info("workbook written", "path", path, "sheets", len(sheets))
		files = append(files, path)
	}

	m := manifest{
		RunID:         uuid.NewString(),
		GeneratedAt:   domain.Clock().Now().UTC(),
		Responses:     responsesPath,
		Questionnaire: questionnairePath,
		Rows:          rep.Responses,
		DroppedLines:  append([]int{}, res.DroppedLines...),
		Files:         relativeTo(surveyOut, files),
	}

	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		err := w.PublishTallies(ctx, m.RunID, rep.Tallies, m.GeneratedAt)
		if cerr := w.Close(); cerr != nil {
			logger.Warn("kafka writer close error", "error", cerr)
		}
		if err != nil {
			return err
		}
		m.Published = true
	}

	if err := writeManifest(filepath.Join(surveyOut, manifestFile), m); err != nil {
		return err
	}
	logger.Info("survey run complete", "run_id", m.RunID, "out", surveyOut, "files", len(m.Files))
	return nil
}

// loadSurvey parses the questionnaire and loads the responses it describes,
// counting accepted and dropped rows.
func loadSurvey(responses, questionnaire string, strict bool) (domain.Questionnaire, survey.LoadResult, error) {
	qf, err := os.Open(questionnaire)
	if err != nil {
		return domain.Questionnaire{}, survey.LoadResult{}, fmt.Errorf("open questionnaire: %w", err)
	}
	defer qf.Close()
	q, err := domain.ParseQuestionnaire(qf)
	if err != nil {
		return domain.Questionnaire{}, survey.LoadResult{}, err
	}

	rf, err := os.Open(responses)
	if err != nil {
		return q, survey.LoadResult{}, fmt.Errorf("open responses: %w", err)
	}
	defer rf.Close()
	res, err := survey.Load(rf, q, survey.LoadOptions{Strict: strict}, logger)
	if err != nil {
		return q, survey.LoadResult{}, fmt.Errorf("load %s: %w", responses, err)
	}

	metrics.RowsLoaded.WithLabelValues("responses").Add(float64(len(res.Responses)))
	metrics.RowsDropped.WithLabelValues("responses", "blank_postcode").Add(float64(len(res.DroppedLines)))
	return q, res, nil
}

func parseDimensions(names []string) ([]survey.Dimension, error) {
	dims := make([]survey.Dimension, 0, len(names))
	for _, name := range names {
		d, ok := survey.ParseDimension(name)
		if !ok {
			return nil, fmt.Errorf("unknown dimension %q (want sector, district or street)", name)
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func writeManifest(path string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// relativeTo rewrites paths under dir relative to it.
func relativeTo(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}
