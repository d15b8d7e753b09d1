package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/setup"
	"github.com/banshee-data/nodesweep/internal/sweep"
	"github.com/banshee-data/nodesweep/internal/timeutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })
}

func oneParamGraph() *graph.Graph {
	return graph.New("mat", graph.NewNode("A", graph.NewScalar("X", 0.5, 0, 1)))
}

type fakeRecorder struct {
	mu      sync.Mutex
	started []RunInfo
	samples []SampleRecord
	outcome *RunOutcome
	failAt  int
}

func (f *fakeRecorder) StartRun(_ context.Context, info RunInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, info)
	return nil
}

func (f *fakeRecorder) RecordSample(_ context.Context, _ string, rec SampleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && rec.Index+1 == f.failAt {
		return errors.New("disk full")
	}
	f.samples = append(f.samples, rec)
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, _ string, out RunOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = &out
	return nil
}

type harness struct {
	fs       *fsutil.MemoryFileSystem
	clock    *timeutil.MockClock
	events   []progress.Event
	rendered []string
	driver   *Driver
}

// newHarness builds a driver whose renders take perRender of mock time.
func newHarness(t *testing.T, perRender time.Duration, fail func(path string, call int) error, extra ...Option) *harness {
	t.Helper()
	muteLogs(t)
	h := &harness{
		fs:    fsutil.NewMemoryFileSystem(),
		clock: timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	calls := 0
	r := FuncRenderer(func(_ context.Context, snap graph.Snapshot, path string) error {
		calls++
		h.clock.Advance(perRender)
		if fail != nil {
			if err := fail(path, calls); err != nil {
				return err
			}
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		h.rendered = append(h.rendered, path)
		return h.fs.WriteFile(path, data, 0o644)
	})
	opts := append([]Option{
		WithFileSystem(h.fs),
		WithClock(h.clock),
		WithReporter(progress.ReporterFunc(func(e progress.Event) { h.events = append(h.events, e) })),
	}, extra...)
	h.driver = NewDriver(r, opts...)
	return h
}

func TestDriver_Preconditions(t *testing.T) {
	h := newHarness(t, 0, nil)
	good := RunOptions{OutputDir: "out", Samples: 1}

	tests := []struct {
		name string
		g    *graph.Graph
		opts RunOptions
		want error
	}{
		{"no graph", nil, good, ErrNoGraph},
		{"nodes not loaded", graph.New("empty"), good, ErrNodesNotLoaded},
		{"no output dir", oneParamGraph(), RunOptions{Samples: 1}, ErrOutputDirUnset},
		{"zero samples", oneParamGraph(), RunOptions{OutputDir: "out"}, ErrInvalidSamples},
		{"unknown strategy", oneParamGraph(), RunOptions{OutputDir: "out", Samples: 1, Strategy: "zigzag"}, ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.driver.Run(context.Background(), tt.g, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, h.rendered, "no render may start when a precondition fails")
	assert.Empty(t, h.fs.Files())
}

func TestDriver_ConsecutiveRun(t *testing.T) {
	h := newHarness(t, 2*time.Second, nil)
	g := oneParamGraph()

	res, err := h.driver.Run(context.Background(), g, RunOptions{
		RunID:     "run-1",
		OutputDir: "out",
		Samples:   3,
		Strategy:  sweep.StrategyConsecutive,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"out/0.png", "out/1.png", "out/2.png"}, h.rendered)
	require.Len(t, res.Samples, 3)
	for i, want := range []float64{-1, 0, 1} {
		s := res.Samples[i]
		assert.Equal(t, i, s.Index)
		assert.Equal(t, 2*time.Second, s.Duration)
		assert.Equal(t, 1, s.Attempts)
		assert.Equal(t, []string{"A/X"}, s.Columns)
		require.Len(t, s.Labels, 1)
		assert.InDelta(t, want, s.Labels[0], 1e-12)
	}
	assert.Equal(t, 0.5, g.Node("A").Parameter("X").Current[0], "swept parameter restored")
	assert.Equal(t, 6*time.Second, res.Total)
	assert.Equal(t, 2*time.Second, res.MeanRender)
	assert.Zero(t, res.StdRender)

	assert.ElementsMatch(t, []string{
		"out/" + MinMaxFile, "out/" + ParamFile, "out/" + LabelFile,
	}, res.Artifacts)
}

func TestDriver_Artifacts(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	_, err := h.driver.Run(context.Background(), oneParamGraph(), RunOptions{OutputDir: "out", Samples: 3, Extension: "exr"})
	require.NoError(t, err)
	assert.True(t, h.fs.Exists("out/2.exr"))

	data, err := h.fs.ReadFile("out/" + ParamFile)
	require.NoError(t, err)
	var params map[string]graph.Snapshot
	require.NoError(t, json.Unmarshal(data, &params))
	require.Len(t, params, 3)
	assert.Equal(t, 0.0, params["0"]["A"]["X"])
	assert.Equal(t, 0.5, params["1"]["A"]["X"])
	assert.Equal(t, 1.0, params["2"]["A"]["X"])

	data, err = h.fs.ReadFile("out/" + LabelFile)
	require.NoError(t, err)
	labels, err := DecodeLabels(data)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1}, {0}, {1}}, labels)

	data, err = h.fs.ReadFile("out/" + MinMaxFile)
	require.NoError(t, err)
	recs, err := setup.ReadMinMax(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, setup.MinMaxRecord{
		NodeName: "A", Identifier: "X", InputName: "X",
		Type: graph.KindScalar, UserMin: 0, UserMax: 1, ISub: setup.ScalarSub,
	}, recs[0])
}

func TestDriver_ProgressLines(t *testing.T) {
	h := newHarness(t, 2*time.Second, nil)
	_, err := h.driver.Run(context.Background(), oneParamGraph(), RunOptions{RunID: "r", OutputDir: "out", Samples: 3})
	require.NoError(t, err)

	require.Len(t, h.events, 4)
	assert.Equal(t, progress.KindRender, h.events[0].Kind)
	assert.Equal(t, "Rendered image 1 of 3 [Elapsed: 0h 0m 2.00s][Remaining: 0h 0m 4.00s]", h.events[0].Message)
	assert.Equal(t, "Rendered image 3 of 3 [Elapsed: 0h 0m 6.00s][Remaining: 0h 0m 0.00s]", h.events[2].Message)

	summary := h.events[3]
	assert.Equal(t, progress.KindSummary, summary.Kind)
	assert.Equal(t, "Total Time: 6.0s [Avg per render: 2.000s]", summary.Message)
	for _, e := range h.events {
		assert.Equal(t, "r", e.RunID)
	}
}

func TestDriver_RandomStrategyLabels(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	g := graph.New("mat",
		graph.NewNode("A", graph.NewScalar("X", 0.5, 0, 1), graph.NewInteger("N", 1, 0, 4)),
		graph.NewNode("B", graph.NewVector3("V", graph.Vec3{}, graph.Vec3{-1, -1, -1}, graph.Vec3{1, 1, 1})),
	)
	res, err := h.driver.Run(context.Background(), g, RunOptions{OutputDir: "out", Samples: 4, Strategy: sweep.StrategyRandom, Seed: 7})
	require.NoError(t, err)
	for _, s := range res.Samples {
		require.Len(t, s.Labels, 5)
		assert.Equal(t, []string{"A/X", "A/N", "B/V[0]", "B/V[1]", "B/V[2]"}, s.Columns)
		for _, l := range s.Labels {
			assert.GreaterOrEqual(t, l, -1.0)
			assert.LessOrEqual(t, l, 1.0)
		}
	}
	assert.NotEmpty(t, res.RunID, "run ID generated")
}

func TestDriver_RetriesWithBackoff(t *testing.T) {
	h := newHarness(t, 0, func(_ string, call int) error {
		if call <= 2 {
			return fmt.Errorf("transient %d", call)
		}
		return nil
	})
	res, err := h.driver.Run(context.Background(), oneParamGraph(), RunOptions{
		OutputDir: "out", Samples: 1, Retries: 2, RetryDelay: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Samples[0].Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.clock.Waits())
}

func TestDriver_RenderFailureAbortsRun(t *testing.T) {
	rec := &fakeRecorder{}
	boom := errors.New("renderer crashed")
	h := newHarness(t, 0, func(path string, _ int) error {
		if path == "out/1.png" {
			return boom
		}
		return nil
	}, WithRecorder(rec))
	g := oneParamGraph()

	res, err := h.driver.Run(context.Background(), g, RunOptions{RunID: "r1", OutputDir: "out", Samples: 3, Retries: 1})
	require.ErrorIs(t, err, boom)
	assert.Len(t, res.Samples, 1)
	assert.False(t, h.fs.Exists("out/"+ParamFile), "artifacts only written on completion")
	assert.Equal(t, 0.5, g.Node("A").Parameter("X").Current[0])

	require.NotNil(t, rec.outcome)
	assert.Contains(t, rec.outcome.Err, "renderer crashed")
	assert.Equal(t, 1, rec.outcome.Samples)
}

func TestDriver_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	h := newHarness(t, time.Second, nil, WithRecorder(rec))

	_, err := h.driver.Run(context.Background(), oneParamGraph(), RunOptions{RunID: "r2", OutputDir: "out", Samples: 2, Seed: 3})
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	info := rec.started[0]
	assert.Equal(t, "r2", info.ID)
	assert.Equal(t, RunKindRender, info.Kind)
	assert.Equal(t, "mat", info.Graph)
	assert.Equal(t, string(sweep.StrategyConsecutive), info.Strategy)
	assert.Equal(t, uint64(3), info.Seed)
	assert.Len(t, rec.samples, 2)
	require.NotNil(t, rec.outcome)
	assert.Empty(t, rec.outcome.Err)
	assert.Equal(t, 2*time.Second, rec.outcome.Total)
}

func TestDriver_RecorderFailureAborts(t *testing.T) {
	rec := &fakeRecorder{failAt: 2}
	h := newHarness(t, 0, nil, WithRecorder(rec))
	_, err := h.driver.Run(context.Background(), oneParamGraph(), RunOptions{OutputDir: "out", Samples: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, h.rendered, 2)
}

func TestDriver_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, 0, func(_ string, call int) error {
		if call == 1 {
			cancel()
		}
		return nil
	})
	res, err := h.driver.Run(ctx, oneParamGraph(), RunOptions{OutputDir: "out", Samples: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Samples, 1)
	assert.Len(t, h.rendered, 1)
}
