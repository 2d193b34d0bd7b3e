// Package chart renders survey tallies and route distances as images. The
// output format follows the file extension (png, svg, pdf, ...).
package chart

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

// ErrNothingToPlot is returned when no row has the values a chart needs.
var ErrNothingToPlot = errors.New("nothing to plot")

var barWidth = vg.Points(20)

// Bar draws one bar per answer bucket of a tally.
func Bar(t survey.Table, path string) error {
	if len(t.Rows) == 0 {
		return ErrNothingToPlot
	}
	values := make(plotter.Values, len(t.Rows))
	names := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		values[i] = float64(r.Count)
		names[i] = r.Answer
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (n=%d)", titleOf(t), t.Total)
	p.Y.Label.Text = "Responses"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return fmt.Errorf("bar chart %s: %w", t.QuestionID, err)
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func titleOf(t survey.Table) string {
	if t.Label != "" {
		return t.Label
	}
	return t.QuestionID
}

// DistanceBar is one street's before distance and increase, in miles.
type DistanceBar struct {
	Street   string
	Before   float64
	Increase float64
}

// PrepareDistances converts streets with both distances into bars sorted by
// the before distance. Increases within routing noise are zeroed. The
// second result is the mean increase in miles.
func PrepareDistances(streets []domain.Street) ([]DistanceBar, float64) {
	var bars []DistanceBar
	total := 0.0
	for _, s := range streets {
		inc, ok := s.DistanceIncrease()
		if !ok {
			continue
		}
		b := DistanceBar{
			Street:   s.Name,
			Before:   *s.DistanceBefore * domain.MetersToMiles,
			Increase: inc * domain.MetersToMiles,
		}
		bars = append(bars, b)
		total += b.Increase
	}
	if len(bars) == 0 {
		return nil, 0
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Before < bars[j].Before })
	return bars, total / float64(len(bars))
}

// DistanceOptions names the places on a distance chart.
type DistanceOptions struct {
	Destination string
	Origin      string
}

// StackedDistances draws, per street, the pre-scheme distance with the
// post-scheme increase stacked on top, and returns the average increase
// in miles.
func StackedDistances(streets []domain.Street, path string, opts DistanceOptions) (float64, error) {
	bars, avg := PrepareDistances(streets)
	if len(bars) == 0 {
		return 0, ErrNothingToPlot
	}

	before := make(plotter.Values, len(bars))
	increase := make(plotter.Values, len(bars))
	names := make([]string, len(bars))
	for i, b := range bars {
		before[i] = b.Before
		increase[i] = b.Increase
		names[i] = b.Street
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Driving distance to %s from %s\nAverage distance increase: %.2f miles",
		opts.Destination, opts.Origin, avg)
	p.X.Label.Text = "Streets"
	p.Y.Label.Text = "Driving distance (miles)"
	p.Y.Min = 0
	p.Legend.Top = true

	beforeBars, err := plotter.NewBarChart(before, barWidth)
	if err != nil {
		return 0, fmt.Errorf("before bars: %w", err)
	}
	beforeBars.Color = plotutil.Color(0)
	beforeBars.LineStyle.Width = 0

	afterBars, err := plotter.NewBarChart(increase, barWidth)
	if err != nil {
		return 0, fmt.Errorf("after bars: %w", err)
	}
	afterBars.Color = plotutil.Color(1)
	afterBars.LineStyle.Width = 0
	afterBars.StackOn(beforeBars)

	p.Add(beforeBars, afterBars)
	p.Legend.Add("Before LTN", beforeBars)
	p.Legend.Add("After LTN", afterBars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = -math.Pi / 2
	p.X.Tick.Label.XAlign = text.XLeft
	p.X.Tick.Label.YAlign = text.YCenter

	width := vg.Length(math.Max(8, 0.35*float64(len(bars)))) * vg.Inch
	if err := p.Save(width, 8*vg.Inch, path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return avg, nil
}
