package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/lsoa"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

var (
	lsoaLookup string
	lsoaIMD    string
	lsoaOut    string
)

var lsoaCmd = &cobra.Command{
	Use:   "lsoa",
	Short: "Count responses per deprivation decile",
	Long: `Joins each response's postcode to its LSOA through the ONS postcode
lookup (pcds with lsoa21cd or lsoa11cd), then to the LSOA's Index of
Multiple Deprivation decile, and writes a decile,responses CSV. Postcodes
without a match are counted under "unknown".`,
	Args: cobra.NoArgs,
	RunE: runLSOA,
}

func init() {
	lsoaCmd.Flags().StringVar(&responsesPath, "responses", "", "Survey export CSV (required)")
	lsoaCmd.Flags().StringVar(&questionnairePath, "questionnaire", "", "Questionnaire YAML (required)")
	lsoaCmd.Flags().BoolVar(&strictLoad, "strict", false, "Fail on rows without a postcode instead of dropping them")
	lsoaCmd.Flags().StringVar(&lsoaLookup, "lookup", "", "ONS postcode to LSOA lookup CSV (required)")
	lsoaCmd.Flags().StringVar(&lsoaIMD, "imd", "", "IMD CSV with LSOA code and decile columns (required)")
	lsoaCmd.Flags().StringVar(&lsoaOut, "out", "", "Output CSV (default stdout)")
	for _, name := range []string{"responses", "questionnaire", "lookup", "imd"} {
		_ = lsoaCmd.MarkFlagRequired(name)
	}
}

func runLSOA(cmd *cobra.Command, args []string) error {
	_, res, err := loadSurvey(responsesPath, questionnairePath, strictLoad)
	if err != nil {
		return err
	}

	m, err := loadLSOAMapping(lsoaLookup, lsoaIMD)
	if err != nil {
		return err
	}

	counts := lsoa.CountByDecile(res.Responses, m)
	for _, c := range counts {
		if c.Decile == lsoa.Unknown {
			logger.Warn("responses without a deprivation decile", "count", c.Responses)
		}
	}

	df := lsoa.Frame(counts)
	if lsoaOut == "" {
		if err := df.WriteCSV(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("write decile counts: %w", err)
		}
	} else {
		if err := survey.WriteFrame(lsoaOut, df); err != nil {
			return err
		}
		metrics.TablesWritten.Inc()
	}
	logger.Info("decile counts written", "deciles", len(counts), "responses", len(res.Responses))
	return nil
}

func loadLSOAMapping(lookupPath, imdPath string) (domain.LSOAMapping, error) {
	lf, err := os.Open(lookupPath)
	if err != nil {
		return domain.LSOAMapping{}, fmt.Errorf("open postcode lookup: %w", err)
	}
	defer lf.Close()
	postcodes, err := lsoa.LoadPostcodes(lf)
	if err != nil {
		return domain.LSOAMapping{}, err
	}

	f, err := os.Open(imdPath)
	if err != nil {
		return domain.LSOAMapping{}, fmt.Errorf("open IMD table: %w", err)
	}
	defer f.Close()
	deciles, err := lsoa.LoadDeciles(f)
	if err != nil {
		return domain.LSOAMapping{}, err
	}

	logger.Info("LSOA lookups loaded", "postcodes", len(postcodes), "lsoas", len(deciles))
	return domain.LSOAMapping{Postcodes: postcodes, Deciles: deciles}, nil
}
