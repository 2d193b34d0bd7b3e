package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ltn-survey/internal/adapter/zoopla"
	"github.com/couchcryptid/ltn-survey/internal/streets"
)

var (
	postcodesFrom       string
	postcodesOut        string
	postcodesLocalities []string
)

var postcodesCmd = &cobra.Command{
	Use:   "postcodes [street...]",
	Short: "Find the postcode of each street",
	Long: `Looks each street up on Zoopla's house price pages, trying each
--locality in turn, and writes a street,postcode CSV. Streets that could not
be resolved are listed on stderr and left out of the file.

Street names come from the arguments, or one per line from --from.

Example:
  ltnsurvey postcodes "Chapel Lane" "Sandy Lane" --out streets.csv`,
	RunE: runPostcodes,
}

func init() {
	postcodesCmd.Flags().StringVar(&postcodesFrom, "from", "", "File with one street name per line")
	postcodesCmd.Flags().StringVar(&postcodesOut, "out", "", "Output CSV (default stdout)")
	postcodesCmd.Flags().StringSliceVar(&postcodesLocalities, "locality", streets.DefaultLocalities, "Localities to search, in order")
}

func runPostcodes(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	names := append([]string(nil), args...)
	if postcodesFrom != "" {
		f, err := os.Open(postcodesFrom)
		if err != nil {
			return fmt.Errorf("open street list: %w", err)
		}
		fromFile, err := readLines(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", postcodesFrom, err)
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no streets given: pass names as arguments or use --from")
	}

	finder := zoopla.NewClient(cfg.ZooplaURL, cfg.UserEmail, cfg.HTTPTimeout, metrics, logger)
	table, missing, err := streets.ResolvePostcodes(ctx, finder, names, postcodesLocalities, logger)
	if err != nil {
		return err
	}
	metrics.RowsLoaded.WithLabelValues("streets").Add(float64(table.Len()))
	metrics.RowsDropped.WithLabelValues("streets", "postcode_not_found").Add(float64(len(missing)))

	if err := writeTable(table, postcodesOut, cmd.OutOrStdout()); err != nil {
		return err
	}
	logger.Info("postcodes resolved", "found", table.Len(), "missing", len(missing))
	for _, name := range missing {
		fmt.Fprintf(cmd.ErrOrStderr(), "Could not find postcode for %s\n", name)
	}
	return nil
}

// readLines returns the non-blank, trimmed lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// writeTable writes t to path, or to stdout when path is empty.
func writeTable(t *streets.Table, path string, stdout io.Writer) error {
	if path == "" {
		return t.WriteCSV(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
