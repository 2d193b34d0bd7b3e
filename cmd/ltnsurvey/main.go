// Command ltnsurvey analyses the Littlemore LTN resident survey and prepares
// the street-level data that backs its charts.
//
// Usage:
//
//	ltnsurvey survey --responses responses.csv --questionnaire questionnaire.yaml --out results
//	ltnsurvey postcodes --from streets.txt --out streets.csv
//	ltnsurvey streets enrich streets.csv --in-place
//	ltnsurvey streets plot streets.csv --out driving_distance.png
//	ltnsurvey lsoa --responses responses.csv --questionnaire questionnaire.yaml --lookup PCD_OA_LSOA.csv --imd imd.csv
//	ltnsurvey validate --responses responses.csv --questionnaire questionnaire.yaml --tallies results/question_counts.csv --results results
//
// Settings that are not file names come from the environment (see
// internal/config).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ltn-survey/internal/config"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const metricsJob = "ltn_survey"

var (
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "ltnsurvey",
	Short: "Littlemore LTN survey analysis",
	Long: `Loads and aggregates the LTN survey responses, and prepares the
street postcode, location and route distance data used by its charts.

Each subcommand reads its inputs once and writes its outputs; nothing is
kept between runs except the optional lookup cache (CACHE_PATH).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger = observability.NewLogger(cfg, os.Stderr)
		metrics = observability.NewMetrics()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		pushMetrics(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(surveyCmd)
	rootCmd.AddCommand(postcodesCmd)
	rootCmd.AddCommand(streetsCmd)
	rootCmd.AddCommand(lsoaCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, errValidationFailed):
			// The report has already been printed.
		case logger != nil:
			logger.Error("command failed", "error", err)
		default:
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// pushMetrics sends the run's counters to the Pushgateway when one is set.
func pushMetrics(ctx context.Context) {
	if cfg == nil || cfg.PushgatewayURL == "" || metrics == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := metrics.Push(ctx, cfg.PushgatewayURL, metricsJob); err != nil {
		logger.Warn("metrics push failed", "url", cfg.PushgatewayURL, "error", err)
		return
	}
	logger.Debug("metrics pushed", "url", cfg.PushgatewayURL)
}

// commandContext returns the command's context, falling back to Background
// when the command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
