package streets

import (
	"context"
	"log/slog"
	"strings"

	"github.com/couchcryptid/ltn-survey/internal/domain"
)

// DefaultLocalities are searched in order when resolving street postcodes:
// the village first, then the wider city.
var DefaultLocalities = []string{"littlemore", "oxford"}

// ResolvePostcodes looks up each street under each locality in turn and
// returns a street/postcode table plus the streets that could not be
// resolved. Lookup errors for one street are logged and do not stop the run.
func ResolvePostcodes(ctx context.Context, finder domain.PostcodeFinder, names, localities []string, logger *slog.Logger) (*Table, []string, error) {
	t := NewTable(ColStreet, ColPostcode)
	var missing []string

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return t, missing, err
		}

		postcode := ""
		for _, locality := range localities {
			pc, err := finder.Search(ctx, name, locality)
			if err != nil {
				if ctx.Err() != nil {
					return t, missing, ctx.Err()
				}
				logger.Warn("postcode search failed", "street", name, "locality", locality, "error", err)
				continue
			}
			if pc != "" {
				postcode = pc
				break
			}
		}

		if postcode == "" {
			logger.Warn("could not find postcode", "street", name)
			missing = append(missing, name)
			continue
		}
		logger.Info("postcode found", "street", name, "postcode", postcode)
		t.AppendRow(map[string]string{ColStreet: name, ColPostcode: postcode})
	}
	return t, missing, nil
}
