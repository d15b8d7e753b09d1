package eliminate

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/sweep"
	"github.com/banshee-data/nodesweep/internal/timeutil"
)

// RunKindEliminate identifies elimination runs in a Recorder.
const RunKindEliminate = "eliminate"

// Engine runs parameter elimination against a renderer.
type Engine struct {
	renderer   render.Renderer
	transmuter *sweep.Transmuter
	opts       Options
	fs         fsutil.FileSystem
	clock      timeutil.Clock
	reporter   progress.Reporter
	recorder   Recorder
	runID      string
}

// Option configures an Engine.
type Option func(*Engine)

// WithFileSystem sets where probe images are read from.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithClock sets the clock used for run timing.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithRecorder persists the run and its decisions.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRunID fixes the run ID; otherwise each run gets a new UUID.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// NewEngine returns an engine rendering probes through r and randomizing
// the background with sampler.
func NewEngine(r render.Renderer, sampler *sweep.Sampler, opts Options, options ...Option) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		renderer:   r,
		transmuter: sweep.NewTransmuter(sampler),
		opts:       opts,
		fs:         fsutil.OSFileSystem{},
		clock:      timeutil.RealClock{},
		reporter:   progress.LogReporter{},
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// Run decides every candidate of g in traversal order and disables the
// insignificant ones. Every parameter value is restored before Run
// returns; only enable flags change.
func (e *Engine) Run(ctx context.Context, g *graph.Graph) (*Summary, error) {
	if g == nil {
		return nil, render.ErrNoGraph
	}
	if !g.Loaded() {
		return nil, render.ErrNodesNotLoaded
	}
	if err := e.fs.MkdirAll(e.opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	saved := g.Capture()
	defer g.Restore(saved)

	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	candidates := Candidates(g)
	start := e.clock.Now()
	if e.recorder != nil {
		err := e.recorder.StartRun(ctx, render.RunInfo{
			ID:        runID,
			Kind:      RunKindEliminate,
			Graph:     g.Name,
			Samples:   len(candidates),
			OutputDir: e.opts.ScratchDir,
			Started:   start,
		})
		if err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}

	sum := &Summary{RunID: runID}
	runErr := e.decideAll(ctx, g, candidates, saved, sum)

	if e.recorder != nil {
		out := render.RunOutcome{Finished: e.clock.Now(), Samples: len(sum.Decisions), Total: e.clock.Since(start)}
		if runErr != nil {
			out.Err = runErr.Error()
		}
		if err := e.recorder.FinishRun(ctx, runID, out); err != nil {
			monitoring.Logf("WARNING: record run finish: %v", err)
		}
	}
	if runErr != nil {
		return sum, runErr
	}

	monitoring.Logf("==== Parameter elimination summary ====")
	e.reporter.Report(progress.Event{
		RunID:   runID,
		Kind:    progress.KindSummary,
		Index:   len(sum.Decisions),
		Total:   len(candidates),
		Elapsed: e.clock.Since(start),
		Message: fmt.Sprintf("Total parameters eliminated: %d", len(sum.Disabled)),
		Time:    e.clock.Now(),
	})
	for _, d := range sum.Disabled {
		monitoring.Logf("%s", d.Message())
	}
	return sum, nil
}

func (e *Engine) decideAll(ctx context.Context, g *graph.Graph, candidates []Candidate, saved graph.Values, sum *Summary) error {
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("elimination aborted at %s: %w", c, err)
		}
		d, err := e.decide(ctx, g, c, sum.RunID)
		if err != nil {
			return fmt.Errorf("decide %s: %w", c, err)
		}

		p := c.Ref.Param
		// The candidate goes back to its value from before elimination so a
		// disabled channel does not keep its last probe value.
		if v, ok := saved[c.Ref.Node.Name][p.ID]; ok {
			p.Current = v
		}
		if !d.Kept {
			if err := p.SetChannelEnabled(c.Channel, false); err != nil {
				return fmt.Errorf("disable %s: %w", c, err)
			}
			sum.Disabled = append(sum.Disabled, d)
		}
		sum.Decisions = append(sum.Decisions, d)

		if e.recorder != nil {
			if err := e.recorder.RecordDecision(ctx, sum.RunID, d); err != nil {
				return fmt.Errorf("record decision %s: %w", c, err)
			}
		}
		e.reporter.Report(progress.Event{
			RunID:   sum.RunID,
			Kind:    progress.KindDecision,
			Index:   i + 1,
			Total:   len(candidates),
			Message: d.Message(),
			Time:    e.clock.Now(),
		})
	}
	return nil
}

// decide runs up to Loops probe batches for c and stops at the first
// batch in which some probe reaches NormThresh.
func (e *Engine) decide(ctx context.Context, g *graph.Graph, c Candidate, runID string) (Decision, error) {
	p := c.Ref.Param
	d := Decision{
		Node:      c.Ref.Node.Name,
		Input:     p.ID,
		Name:      p.Name,
		Kind:      p.Kind,
		Channel:   c.Channel,
		Explained: 1,
	}

	spaced, err := sweep.LinspaceParam(p, e.opts.Renders, c.Channel)
	if err != nil {
		return d, err
	}
	values := spaced[0]

	for loop := 0; loop < e.opts.Loops; loop++ {
		d.Loops = loop + 1
		if _, err := e.transmuter.TransmuteExcept(g, c.Ref, c.Channel); err != nil {
			return d, fmt.Errorf("randomize background: %w", err)
		}
		rows, err := e.probe(ctx, g, c, values)
		if err != nil {
			return d, err
		}
		proj, err := project(rows, e.opts.Components)
		if err != nil {
			return d, err
		}

		ex := proj.explained()
		d.Explained = min(d.Explained, ex)
		if ex < e.opts.ExplainedVarThresh {
			e.reporter.Report(progress.Event{
				RunID:   runID,
				Kind:    progress.KindWarning,
				Message: fmt.Sprintf("WARNING: the total explained variance ratio is below %g (%.3f) for %s", e.opts.ExplainedVarThresh, ex, c),
				Time:    e.clock.Now(),
			})
		}

		loopMax := 0.0
		for i := 1; i < len(rows); i++ {
			dist := proj.distance(0, i)
			loopMax = max(loopMax, dist)
			d.MaxNorm = max(d.MaxNorm, loopMax)
			if dist >= e.opts.NormThresh {
				e.reportProbe(runID, fmt.Sprintf("(loop %d) max norm of %.3f did reach threshold of %g in image %d", loop, loopMax, e.opts.NormThresh, i))
				d.Kept = true
				return d, nil
			}
		}
		e.reportProbe(runID, fmt.Sprintf("(loop %d) max norm of %.3f did not reach threshold of %g", loop, loopMax, e.opts.NormThresh))
	}
	return d, nil
}

func (e *Engine) reportProbe(runID, msg string) {
	e.reporter.Report(progress.Event{RunID: runID, Kind: progress.KindProbe, Message: msg, Time: e.clock.Now()})
}

// probe renders one image per value of the candidate and loads them as
// rows. Each render completes before its image is read.
func (e *Engine) probe(ctx context.Context, g *graph.Graph, c Candidate, values []float64) ([][]float64, error) {
	rows := make([][]float64, 0, len(values))
	var size image.Point
	for i, v := range values {
		if err := assign(c.Ref.Param, c.Channel, v); err != nil {
			return nil, err
		}
		path := filepath.Join(e.opts.ScratchDir, fmt.Sprintf("%d.png", i))
		if err := e.renderer.Render(ctx, g.Snapshot(), path); err != nil {
			return nil, fmt.Errorf("render probe %d: %w", i, err)
		}
		row, sz, err := loadImage(e.fs, path, e.opts.MaxImageDim)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			size = sz
		} else if sz != size {
			return nil, fmt.Errorf("%w: probe %d is %v, probe 0 is %v", ErrImageSizeMismatch, i, sz, size)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// assign sets one channel of p. Color channels are HSV.
func assign(p *graph.Parameter, ch int, v float64) error {
	switch p.Kind {
	case graph.KindColor:
		if err := p.CheckChannel(ch); err != nil || ch == graph.AllChannels {
			return fmt.Errorf("%w: color probes need one channel, got %d", graph.ErrChannelOutOfRange, ch)
		}
		hsv := p.HSV()
		hsv[ch] = v
		p.SetHSV(hsv)
		return nil
	case graph.KindVector3:
		return p.Set(ch, v)
	}
	return p.Set(0, v)
}
