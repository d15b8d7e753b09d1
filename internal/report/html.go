package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/render"
)

// Page is everything stored for one run.
type Page struct {
	Run       db.Run
	Samples   []render.SampleRecord
	Decisions []eliminate.Decision
	// Threshold is drawn as a mark line on the distance chart when > 0.
	Threshold float64
}

// Load reads a run with its samples and decisions.
func Load(ctx context.Context, store *db.DB, runID string) (Page, error) {
	run, err := store.Run(ctx, runID)
	if err != nil {
		return Page{}, err
	}
	samples, err := store.Samples(ctx, runID)
	if err != nil {
		return Page{}, err
	}
	decisions, err := store.Decisions(ctx, runID)
	if err != nil {
		return Page{}, err
	}
	return Page{Run: run, Samples: samples, Decisions: decisions}, nil
}

// WriteHTML renders the run as an HTML page: render timings for render runs
// and max norms for elimination runs.
func WriteHTML(w io.Writer, pg Page) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("nodesweep run %s", pg.Run.ID)

	if len(pg.Samples) > 0 {
		page.AddCharts(timingChart(pg))
	}
	if len(pg.Decisions) > 0 {
		page.AddCharts(distanceChart(pg))
	}
	if len(pg.Samples) == 0 && len(pg.Decisions) == 0 {
		page.AddCharts(emptyChart(pg))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func subtitle(r db.Run) string {
	return fmt.Sprintf("%s run of %s, %s, started %s", r.Kind, r.Graph, r.Status(), r.Started.Format(time.RFC3339))
}

func timingChart(pg Page) *charts.Line {
	x := make([]string, len(pg.Samples))
	y := make([]opts.LineData, len(pg.Samples))
	for i, s := range pg.Samples {
		x[i] = fmt.Sprintf("%d", s.Index)
		y[i] = opts.LineData{Value: s.Duration.Seconds()}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Render time", Subtitle: subtitle(pg.Run)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Seconds", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("render time", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
		)
	return line
}

func distanceChart(pg Page) *charts.Bar {
	x := make([]string, len(pg.Decisions))
	kept := make([]opts.BarData, len(pg.Decisions))
	disabled := make([]opts.BarData, len(pg.Decisions))
	for i, d := range pg.Decisions {
		x[i] = Label(d)
		if d.Kept {
			kept[i] = opts.BarData{Value: d.MaxNorm}
			disabled[i] = opts.BarData{Value: 0}
		} else {
			kept[i] = opts.BarData{Value: 0}
			disabled[i] = opts.BarData{Value: d.MaxNorm}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Elimination distances", Subtitle: subtitle(pg.Run)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	keptOpts := []charts.SeriesOpts{charts.WithBarChartOpts(opts.BarChart{Stack: "norm"})}
	if pg.Threshold > 0 {
		keptOpts = append(keptOpts, charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
			Name:  "threshold",
			YAxis: pg.Threshold,
		}))
	}
	bar.SetXAxis(x).
		AddSeries("kept", kept, keptOpts...).
		AddSeries("disabled", disabled, charts.WithBarChartOpts(opts.BarChart{Stack: "norm"}))
	return bar
}

func emptyChart(pg Page) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "No samples or decisions recorded", Subtitle: subtitle(pg.Run)}),
	)
	return bar
}
