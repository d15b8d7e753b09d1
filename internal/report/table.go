// Package report turns stored runs into text tables, PNG charts and HTML
// pages for auditing renders and elimination decisions.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/timeutil"
)

// Label names a decision as node/input, with [ch] for single channels.
func Label(d eliminate.Decision) string {
	if d.Channel == graph.AllChannels {
		return d.Node + "/" + d.Input
	}
	return fmt.Sprintf("%s/%s[%d]", d.Node, d.Input, d.Channel)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

// RunsTable writes one row per run.
func RunsTable(w io.Writer, runs []db.Run) {
	table := newTable(w, "Run", "Kind", "Graph", "Strategy", "Samples", "Started", "Duration", "Status")
	for _, r := range runs {
		duration := "-"
		if !r.Finished.IsZero() {
			duration = timeutil.FormatHMS(r.Total)
		}
		table.Append([]string{
			r.ID,
			r.Kind,
			r.Graph,
			r.Strategy,
			fmt.Sprintf("%d/%d", r.Completed, r.Samples),
			r.Started.Local().Format(time.DateTime),
			duration,
			r.Status(),
		})
	}
	table.Render()
}

// DecisionTable writes one row per decision with a count of disabled
// candidates in the footer.
func DecisionTable(w io.Writer, decisions []eliminate.Decision) {
	table := newTable(w, "Input", "Kind", "Max norm", "Loops", "Explained", "Verdict")
	disabled := 0
	for _, d := range decisions {
		verdict := "keep"
		if !d.Kept {
			verdict = "disable"
			disabled++
		}
		table.Append([]string{
			Label(d),
			d.Kind.String(),
			fmt.Sprintf("%.3f", d.MaxNorm),
			fmt.Sprintf("%d", d.Loops),
			fmt.Sprintf("%.3f", d.Explained),
			verdict,
		})
	}
	table.SetFooter([]string{"", "", "", "", "DISABLED", fmt.Sprintf("%d", disabled)})
	table.Render()
}

// SamplesTable writes one row per rendered sample.
func SamplesTable(w io.Writer, samples []render.SampleRecord) {
	table := newTable(w, "Index", "Path", "Render time", "Attempts")
	var total time.Duration
	for _, s := range samples {
		total += s.Duration
		table.Append([]string{
			fmt.Sprintf("%d", s.Index),
			s.Path,
			timeutil.FormatHMS(s.Duration),
			fmt.Sprintf("%d", s.Attempts),
		})
	}
	table.SetFooter([]string{"", "TOTAL", timeutil.FormatHMS(total), ""})
	table.Render()
}
