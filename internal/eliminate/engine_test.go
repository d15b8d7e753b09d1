package eliminate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/sweep"
	"github.com/banshee-data/nodesweep/internal/synth"
)

func muteLogs(t *testing.T) {
	t.Helper()
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })
}

func testOptions() Options {
	o := DefaultOptions()
	o.ScratchDir = "probes"
	return o
}

// elimGraph has one input of each node that the synthetic renderer reads
// (A/X, B/V) and inputs it ignores (A/Y, B/C).
func elimGraph() *graph.Graph {
	return graph.New("mat",
		graph.NewNode("A", graph.NewScalar("X", 0.5, 0, 1), graph.NewScalar("Y", 0.25, 0, 1)),
		graph.NewNode("B",
			graph.NewVector3("V", graph.Vec3{0, 0, 0}, graph.Vec3{-1, -1, -1}, graph.Vec3{1, 1, 1}),
			graph.NewColor("C", graph.Vec3{0.8, 0.2, 0.2}, graph.RGBToHSV(graph.Vec3{0.8, 0.2, 0.2}), graph.Vec3{0.1, 0.1, 0.1}),
		),
	)
}

func newSynth(fsys fsutil.FileSystem) *synth.Renderer {
	r := synth.New(fsys, "A/X", "B/V")
	r.Width, r.Height = 8, 8
	r.Gain = 2
	return r
}

type fakeRecorder struct {
	info      render.RunInfo
	decisions []Decision
	outcome   *render.RunOutcome
}

func (f *fakeRecorder) StartRun(_ context.Context, info render.RunInfo) error {
	f.info = info
	return nil
}

func (f *fakeRecorder) RecordDecision(_ context.Context, _ string, d Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, _ string, out render.RunOutcome) error {
	f.outcome = &out
	return nil
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	tests := []struct {
		name string
		mod  func(*Options)
	}{
		{"one render", func(o *Options) { o.Renders = 1 }},
		{"no loops", func(o *Options) { o.Loops = 0 }},
		{"no components", func(o *Options) { o.Components = 0 }},
		{"too many components", func(o *Options) { o.Components = o.Renders + 1 }},
		{"negative threshold", func(o *Options) { o.NormThresh = -1 }},
		{"variance above one", func(o *Options) { o.ExplainedVarThresh = 1.5 }},
		{"no scratch dir", func(o *Options) { o.ScratchDir = "" }},
		{"negative image dim", func(o *Options) { o.MaxImageDim = -4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mod(&o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
		})
	}

	_, err := NewEngine(nil, sweep.NewSampler(1), Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCandidates(t *testing.T) {
	g := elimGraph()
	require.NoError(t, g.Node("B").Parameter("V").SetChannelEnabled(1, false))
	var names []string
	for _, c := range Candidates(g) {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{"A/X", "A/Y", "B/V[0]", "B/V[2]", "B/C[0]", "B/C[1]", "B/C[2]"}, names)
}

func TestDecision_Message(t *testing.T) {
	d := Decision{Node: "A", Name: "Scale", Channel: graph.AllChannels, MaxNorm: 0.1234}
	assert.Equal(t, "DISABLED input Scale of node A (Max Norm: 0.123).", d.Message())
	d.Kept, d.Channel, d.MaxNorm = true, 2, 3
	assert.Equal(t, "Keeping input Scale index 2 of node A (Max Norm: 3.000).", d.Message())
}

func TestEngine_DisablesInertInputs(t *testing.T) {
	muteLogs(t)
	fsys := fsutil.NewMemoryFileSystem()
	rec := &fakeRecorder{}
	var events []progress.Event
	eng, err := NewEngine(newSynth(fsys), sweep.NewSampler(11), testOptions(),
		WithFileSystem(fsys),
		WithRecorder(rec),
		WithRunID("elim-1"),
		WithReporter(progress.ReporterFunc(func(e progress.Event) { events = append(events, e) })),
	)
	require.NoError(t, err)

	g := elimGraph()
	before := g.Capture()
	sum, err := eng.Run(context.Background(), g)
	require.NoError(t, err)

	require.Len(t, sum.Decisions, 8)
	kept := map[string]bool{}
	for _, d := range sum.Decisions {
		key := d.Node + "/" + d.Input
		if d.Channel != graph.AllChannels {
			key = fmt.Sprintf("%s[%d]", key, d.Channel)
		}
		kept[key] = d.Kept
	}
	assert.Equal(t, map[string]bool{
		"A/X": true, "A/Y": false,
		"B/V[0]": true, "B/V[1]": true, "B/V[2]": true,
		"B/C[0]": false, "B/C[1]": false, "B/C[2]": false,
	}, kept)

	require.Len(t, sum.Disabled, 4)
	y := sum.Disabled[0]
	assert.Equal(t, "DISABLED input Y of node A (Max Norm: 0.000).", y.Message())
	assert.Equal(t, 4, y.Loops, "inert inputs run every loop")
	assert.Equal(t, 1, sum.Decisions[0].Loops, "significant inputs stop at the first loop")
	assert.Greater(t, sum.Decisions[0].MaxNorm, 1.0)

	assert.True(t, g.Node("A").Parameter("X").IsEnabled())
	assert.False(t, g.Node("A").Parameter("Y").IsEnabled())
	assert.False(t, g.Node("B").Parameter("C").IsEnabled())
	assert.Equal(t, [3]bool{true, true, true}, g.Node("B").Parameter("V").Enabled)
	assert.Equal(t, before, g.Capture(), "values restored after elimination")

	assert.Equal(t, "elim-1", sum.RunID)
	assert.Equal(t, RunKindEliminate, rec.info.Kind)
	assert.Equal(t, 8, rec.info.Samples)
	assert.Len(t, rec.decisions, 8)
	require.NotNil(t, rec.outcome)
	assert.Empty(t, rec.outcome.Err)

	last := events[len(events)-1]
	assert.Equal(t, progress.KindSummary, last.Kind)
	assert.Equal(t, "Total parameters eliminated: 4", last.Message)

	var warned bool
	for _, e := range events {
		if e.Kind == progress.KindWarning && strings.Contains(e.Message, "A/Y") {
			warned = true
		}
	}
	assert.True(t, warned, "identical probes explain no variance")
}

func TestEngine_Preconditions(t *testing.T) {
	eng, err := NewEngine(newSynth(fsutil.NewMemoryFileSystem()), sweep.NewSampler(1), testOptions())
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), nil)
	assert.ErrorIs(t, err, render.ErrNoGraph)
	_, err = eng.Run(context.Background(), graph.New("empty"))
	assert.ErrorIs(t, err, render.ErrNodesNotLoaded)
}

func TestEngine_RenderFailure(t *testing.T) {
	muteLogs(t)
	boom := errors.New("renderer gone")
	rec := &fakeRecorder{}
	r := render.FuncRenderer(func(context.Context, graph.Snapshot, string) error { return boom })
	eng, err := NewEngine(r, sweep.NewSampler(1), testOptions(), WithFileSystem(fsutil.NewMemoryFileSystem()), WithRecorder(rec))
	require.NoError(t, err)

	g := elimGraph()
	before := g.Capture()
	_, err = eng.Run(context.Background(), g)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, g.Capture())
	assert.True(t, g.Node("A").Parameter("X").IsEnabled())
	require.NotNil(t, rec.outcome)
	assert.Contains(t, rec.outcome.Err, "renderer gone")
}

func TestEngine_SizeMismatch(t *testing.T) {
	muteLogs(t)
	fsys := fsutil.NewMemoryFileSystem()
	calls := 0
	r := render.FuncRenderer(func(_ context.Context, _ graph.Snapshot, path string) error {
		calls++
		writePNG(t, fsys, path, image.NewNRGBA(image.Rect(0, 0, calls, 1)))
		return nil
	})
	eng, err := NewEngine(r, sweep.NewSampler(1), testOptions(), WithFileSystem(fsys))
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), elimGraph())
	assert.ErrorIs(t, err, ErrImageSizeMismatch)
}

func TestEngine_ContextCancel(t *testing.T) {
	muteLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng, err := NewEngine(newSynth(fsutil.NewMemoryFileSystem()), sweep.NewSampler(1), testOptions(), WithFileSystem(fsutil.NewMemoryFileSystem()))
	require.NoError(t, err)
	_, err = eng.Run(ctx, elimGraph())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssign(t *testing.T) {
	c := graph.NewColor("C", graph.Vec3{1, 0, 0}, graph.Vec3{}, graph.Vec3{})
	require.NoError(t, assign(c, 0, 1.0/3))
	assert.InDelta(t, 0.0, c.Current[0], 1e-9)
	assert.InDelta(t, 1.0, c.Current[1], 1e-9)
	assert.Error(t, assign(c, graph.AllChannels, 0.5))

	v := graph.NewVector3("V", graph.Vec3{}, graph.Vec3{}, graph.Vec3{})
	require.NoError(t, assign(v, 2, 0.7))
	assert.Equal(t, graph.Vec3{0, 0, 0.7}, v.Current)

	i := graph.NewInteger("I", 0, 0, 9)
	require.NoError(t, assign(i, graph.AllChannels, 2.6))
	assert.Equal(t, 3.0, i.Current[0])
}
