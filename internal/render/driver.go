package render

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/setup"
	"github.com/banshee-data/nodesweep/internal/sweep"
	"github.com/banshee-data/nodesweep/internal/timeutil"
)

// Run preconditions. These block a run from starting.
var (
	ErrNoGraph         = errors.New("no graph selected")
	ErrNodesNotLoaded  = errors.New("nodes not loaded")
	ErrOutputDirUnset  = errors.New("output directory not set")
	ErrInvalidSamples  = errors.New("sample count must be at least 1")
	ErrUnknownStrategy = sweep.ErrUnknownStrategy
)

// RunKindRender identifies render runs in a Recorder.
const RunKindRender = "render"

// RunOptions configures one render run.
type RunOptions struct {
	// RunID identifies the run to the recorder; empty generates a UUID.
	RunID     string
	OutputDir string
	// Extension of rendered images including the dot; empty means ".png".
	Extension string
	Samples   int
	Strategy  sweep.Strategy
	// Seed of the random strategy; zero seeds from the clock.
	Seed uint64
	// Retries is the number of extra attempts for a failed render.
	Retries    int
	RetryDelay time.Duration
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	Samples    []SampleRecord
	Total      time.Duration
	MeanRender time.Duration
	StdRender  time.Duration
	Artifacts  []string
}

// Driver renders N samples one after another.
type Driver struct {
	renderer Renderer
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	reporter progress.Reporter
	recorder Recorder
}

// Option configures a Driver.
type Option func(*Driver)

// WithFileSystem sets the filesystem artifacts are written to.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(d *Driver) { d.fs = fs }
}

// WithClock sets the clock used for timing and retry delays.
func WithClock(c timeutil.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(d *Driver) { d.reporter = r }
}

// WithRecorder persists runs and samples.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// NewDriver returns a driver rendering through r.
func NewDriver(r Renderer, opts ...Option) *Driver {
	d := &Driver{
		renderer: r,
		fs:       fsutil.OSFileSystem{},
		clock:    timeutil.RealClock{},
		reporter: progress.LogReporter{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (o *RunOptions) validate(g *graph.Graph) error {
	if g == nil {
		return ErrNoGraph
	}
	if !g.Loaded() {
		return ErrNodesNotLoaded
	}
	if strings.TrimSpace(o.OutputDir) == "" {
		return ErrOutputDirUnset
	}
	if o.Samples < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidSamples, o.Samples)
	}
	if _, err := sweep.ParseStrategy(string(o.Strategy)); err != nil {
		return err
	}
	return nil
}

// Run renders opts.Samples images of g. Parameter values are mutated in
// place for each sample and handed to the renderer before the next sample
// is prepared. Artifacts are written to opts.OutputDir once every sample
// has rendered. The graph is left at its defaults for swept parameters.
func (d *Driver) Run(ctx context.Context, g *graph.Graph, opts RunOptions) (*Result, error) {
	if err := opts.validate(g); err != nil {
		return nil, err
	}
	strategy, _ := sweep.ParseStrategy(string(opts.Strategy))
	ext := opts.Extension
	if ext == "" {
		ext = ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	stepper, err := sweep.NewStepper(strategy, g, opts.Samples, sweep.NewSampler(opts.Seed))
	if err != nil {
		return nil, fmt.Errorf("plan samples: %w", err)
	}
	defer stepper.Finish()

	if err := d.fs.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Ranges do not change during a run; capture them before any mutation.
	minMax := setup.MinMax(g)

	start := d.clock.Now()
	if d.recorder != nil {
		err := d.recorder.StartRun(ctx, RunInfo{
			ID:        opts.RunID,
			Kind:      RunKindRender,
			Graph:     g.Name,
			Strategy:  string(strategy),
			Samples:   opts.Samples,
			Seed:      opts.Seed,
			OutputDir: opts.OutputDir,
			Started:   start,
		})
		if err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}

	monitoring.Logf("===== STARTING RENDERING JOB (%d) =====", opts.Samples)

	res := &Result{RunID: opts.RunID}
	runErr := d.renderAll(ctx, stepper, opts, ext, start, res)
	if runErr == nil {
		runErr = d.writeArtifacts(opts.OutputDir, minMax, res)
	}
	res.Total = d.clock.Since(start)

	if d.recorder != nil {
		out := RunOutcome{Finished: d.clock.Now(), Samples: len(res.Samples), Total: res.Total}
		if runErr != nil {
			out.Err = runErr.Error()
		}
		if err := d.recorder.FinishRun(ctx, opts.RunID, out); err != nil {
			monitoring.Logf("WARNING: record run finish: %v", err)
		}
	}
	if runErr != nil {
		return res, runErr
	}

	durations := make([]float64, len(res.Samples))
	for i, s := range res.Samples {
		durations[i] = s.Duration.Seconds()
	}
	mean, std := sweep.MeanStddev(durations)
	res.MeanRender = time.Duration(mean * float64(time.Second))
	res.StdRender = time.Duration(std * float64(time.Second))

	total := res.Total.Seconds()
	summary := fmt.Sprintf("Total Time: %.1fs [Avg per render: %.3fs]", total, total/float64(opts.Samples))
	d.reporter.Report(progress.Event{
		RunID:   opts.RunID,
		Kind:    progress.KindSummary,
		Index:   opts.Samples,
		Total:   opts.Samples,
		Elapsed: res.Total,
		Message: summary,
		Time:    d.clock.Now(),
	})
	return res, nil
}

func (d *Driver) renderAll(ctx context.Context, stepper sweep.Stepper, opts RunOptions, ext string, start time.Time, res *Result) error {
	for i := 0; i < opts.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run aborted before sample %d: %w", i, err)
		}

		sample, err := stepper.Step()
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}

		path := filepath.Join(opts.OutputDir, fmt.Sprintf("%d%s", i, ext))
		t0 := d.clock.Now()
		attempts, err := d.renderWithRetry(ctx, sample.Snapshot, path, opts)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		rec := SampleRecord{
			Index:    i,
			Path:     path,
			Duration: d.clock.Since(t0),
			Attempts: attempts,
			Snapshot: sample.Snapshot,
			Labels:   sample.Labels,
			Columns:  sample.Columns,
		}
		res.Samples = append(res.Samples, rec)

		if d.recorder != nil {
			if err := d.recorder.RecordSample(ctx, opts.RunID, rec); err != nil {
				return fmt.Errorf("record sample %d: %w", i, err)
			}
		}

		done := i + 1
		elapsed := d.clock.Since(start)
		remaining := progress.Estimate(elapsed, done, opts.Samples)
		d.reporter.Report(progress.Event{
			RunID:     opts.RunID,
			Kind:      progress.KindRender,
			Index:     done,
			Total:     opts.Samples,
			Elapsed:   elapsed,
			Remaining: remaining,
			Message:   progress.RenderLine(done, opts.Samples, elapsed, remaining),
			Time:      d.clock.Now(),
		})
	}
	return nil
}

// renderWithRetry renders once plus up to opts.Retries more attempts,
// waiting RetryDelay times the attempt number between them.
func (d *Driver) renderWithRetry(ctx context.Context, snap graph.Snapshot, path string, opts RunOptions) (int, error) {
	var err error
	attempt := 0
	for attempt < opts.Retries+1 {
		attempt++
		err = d.renderer.Render(ctx, snap, path)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || attempt > opts.Retries {
			break
		}
		monitoring.Logf("WARNING: render %s failed (attempt %d of %d): %v", path, attempt, opts.Retries+1, err)
		if opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-d.clock.After(opts.RetryDelay * time.Duration(attempt)):
			}
		}
	}
	return attempt, err
}
