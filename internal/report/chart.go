package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/nodesweep/internal/eliminate"
)

// Chart dimensions for the distance chart.
const (
	ChartWidth  = 10 * vg.Inch
	ChartHeight = 5 * vg.Inch
)

var (
	keptColor      = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff}
	disabledColor  = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	thresholdColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// DistancePlot builds a bar chart of the max norm of every decision with a
// horizontal line at threshold. Kept and disabled candidates are coloured
// differently.
func DistancePlot(decisions []eliminate.Decision, threshold float64) (*plot.Plot, error) {
	if len(decisions) == 0 {
		return nil, fmt.Errorf("no decisions to plot")
	}

	kept := make(plotter.Values, len(decisions))
	disabled := make(plotter.Values, len(decisions))
	names := make([]string, len(decisions))
	for i, d := range decisions {
		names[i] = Label(d)
		if d.Kept {
			kept[i] = d.MaxNorm
		} else {
			disabled[i] = d.MaxNorm
		}
	}

	p := plot.New()
	p.Title.Text = "Elimination distances"
	p.Y.Label.Text = "Max norm"
	p.Y.Min = 0

	width := vg.Points(14)
	keptBars, err := plotter.NewBarChart(kept, width)
	if err != nil {
		return nil, fmt.Errorf("kept bars: %w", err)
	}
	keptBars.Color = keptColor
	keptBars.LineStyle.Width = 0

	disabledBars, err := plotter.NewBarChart(disabled, width)
	if err != nil {
		return nil, fmt.Errorf("disabled bars: %w", err)
	}
	disabledBars.Color = disabledColor
	disabledBars.LineStyle.Width = 0

	line := plotter.NewFunction(func(float64) float64 { return threshold })
	line.Color = thresholdColor
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(keptBars, disabledBars, line)
	p.Legend.Add("kept", keptBars)
	p.Legend.Add("disabled", disabledBars)
	p.Legend.Add(fmt.Sprintf("threshold %g", threshold), line)
	p.Legend.Top = true
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = draw.XRight

	if p.Y.Max < threshold {
		p.Y.Max = threshold * 1.1
	}
	return p, nil
}

// WriteDistanceChart renders the distance chart as PNG to w.
func WriteDistanceChart(w io.Writer, decisions []eliminate.Decision, threshold float64) error {
	p, err := DistancePlot(decisions, threshold)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(ChartWidth, ChartHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create chart writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}

// SaveDistanceChart writes the distance chart to path. The format follows
// the extension (.png, .svg, .pdf).
func SaveDistanceChart(path string, decisions []eliminate.Decision, threshold float64) error {
	p, err := DistancePlot(decisions, threshold)
	if err != nil {
		return err
	}
	if err := p.Save(ChartWidth, ChartHeight, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}
