// Package progress streams human-readable run progress. Every reporter
// receives the same Event; the log reporter prints the message line and the
// MQTT reporter publishes the event as JSON.
package progress

import (
	"fmt"
	"time"

	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/timeutil"
)

// Event kinds.
const (
	KindRender   = "render"
	KindSummary  = "summary"
	KindProbe    = "probe"
	KindDecision = "decision"
	KindWarning  = "warning"
)

// Event is one progress update.
type Event struct {
	RunID     string        `json:"run_id,omitempty"`
	Kind      string        `json:"kind"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Remaining time.Duration `json:"remaining_ns"`
	Message   string        `json:"message"`
	Time      time.Time     `json:"time"`
}

// Reporter receives progress events. Implementations must not block the
// caller for long; a render run calls Report once per sample.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

// LogReporter writes each event message through monitoring.Logf.
type LogReporter struct{}

// Report logs e.Message.
func (LogReporter) Report(e Event) {
	if e.Message != "" {
		monitoring.Logf("%s", e.Message)
	}
}

// Multi fans an event out to every reporter in order.
type Multi []Reporter

// Report forwards e to each non-nil reporter.
func (m Multi) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// Estimate returns the remaining time of a run after done of total units
// took elapsed, assuming the average so far holds.
func Estimate(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	return time.Duration(float64(elapsed) / float64(done) * float64(total-done))
}

// RenderLine formats the per-render progress line.
func RenderLine(done, total int, elapsed, remaining time.Duration) string {
	return fmt.Sprintf("Rendered image %d of %d [Elapsed: %s][Remaining: %s]",
		done, total, timeutil.FormatHMS(elapsed), timeutil.FormatHMS(remaining))
}
