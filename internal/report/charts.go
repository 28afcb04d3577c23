// Package report renders outcome history as charts.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"github.com/wellsgz/pingmon/internal/probe"
)

// ErrNoData is returned when no target has enough successful samples to draw
var ErrNoData = errors.New("not enough samples to draw a chart")

// smaPeriod is the window of the moving average drawn over longer series
const smaPeriod = 10

// Options controls chart size and title
type Options struct {
	Title  string
	Width  int
	Height int
}

type series struct {
	label      string
	timestamps []time.Time
	values     []float64
}

// RenderLatencyChart draws one latency line per target as a PNG
func RenderLatencyChart(w io.Writer, outcomes []probe.Outcome, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Height <= 0 {
		opts.Height = 400
	}
	if opts.Title == "" {
		opts.Title = "Network Latency"
	}

	grouped := groupByTarget(outcomes)

	var all []chart.Series
	peak := 0.0
	for i, s := range grouped {
		if len(s.values) < 2 {
			continue
		}
		ts := chart.TimeSeries{
			Name: s.label,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
			},
			XValues: s.timestamps,
			YValues: s.values,
		}
		all = append(all, ts)

		if len(s.values) > smaPeriod {
			all = append(all, chart.SMASeries{
				Name: s.label + " (avg)",
				Style: chart.Style{
					StrokeColor:     chart.GetDefaultColor(i).WithAlpha(160),
					StrokeWidth:     1,
					StrokeDashArray: []float64{5, 5},
				},
				InnerSeries: ts,
				Period:      smaPeriod,
			})
		}

		for _, v := range s.values {
			peak = max(peak, v)
		}
	}

	if len(all) == 0 {
		return ErrNoData
	}
	if peak <= 0 {
		peak = 1
	}

	graph := chart.Chart{
		Title:      opts.Title,
		TitleStyle: chart.Style{FontSize: 16},
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			Name:           "Time",
			NameStyle:      chart.Style{FontSize: 12},
			Style:          chart.Style{StrokeColor: drawing.ColorBlack, FontSize: 10},
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:      "Latency (ms)",
			NameStyle: chart.Style{FontSize: 12},
			Style:     chart.Style{StrokeColor: drawing.ColorBlack, FontSize: 10},
			Range:     &chart.ContinuousRange{Min: 0, Max: peak * 1.1},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
				StrokeWidth: 1.0,
			},
		},
		Series: all,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// groupByTarget collects successful samples per target in time order.
// Targets keep the order in which they first appear.
func groupByTarget(outcomes []probe.Outcome) []*series {
	sorted := make([]probe.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	index := make(map[string]*series)
	var result []*series
	for _, o := range sorted {
		if !o.Success || o.LatencyMs == nil {
			continue
		}
		s, ok := index[o.Target]
		if !ok {
			label := o.TargetLabel
			if label == "" {
				label = o.Target
			}
			s = &series{label: label}
			index[o.Target] = s
			result = append(result, s)
		}
		s.timestamps = append(s.timestamps, o.Timestamp)
		s.values = append(s.values, *o.LatencyMs)
	}
	return result
}
