package render

import (
	"context"
	"time"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID        string
	Kind      string
	Graph     string
	Strategy  string
	Samples   int
	Seed      uint64
	OutputDir string
	Started   time.Time
}

// SampleRecord is one completed render.
type SampleRecord struct {
	Index    int            `json:"index"`
	Path     string         `json:"path"`
	Duration time.Duration  `json:"duration_ns"`
	Attempts int            `json:"attempts"`
	Snapshot graph.Snapshot `json:"snapshot"`
	Labels   []float64      `json:"labels"`
	Columns  []string       `json:"columns"`
}

// RunOutcome closes a run. Err is empty on success.
type RunOutcome struct {
	Finished time.Time
	Samples  int
	Total    time.Duration
	Err      string
}

// Recorder persists run progress. *db.DB implements it.
type Recorder interface {
	StartRun(ctx context.Context, info RunInfo) error
	RecordSample(ctx context.Context, runID string, rec SampleRecord) error
	FinishRun(ctx context.Context, runID string, out RunOutcome) error
}
