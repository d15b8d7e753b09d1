package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/render"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })

	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewDB_Migrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// A second MigrateUp is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='decisions'").Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewDB_Pragmas(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestRenderRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StartRun(ctx, render.RunInfo{
		ID:        "r1",
		Kind:      render.RunKindRender,
		Graph:     "mat",
		Strategy:  "random",
		Samples:   2,
		Seed:      1<<63 + 5,
		OutputDir: "/out",
		Started:   t0,
	}))

	run, err := db.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status())
	assert.Equal(t, uint64(1<<63+5), run.Seed, "seed survives the signed column")

	samples := []render.SampleRecord{
		{
			Index:    0,
			Path:     "/out/0.png",
			Duration: 2 * time.Second,
			Attempts: 1,
			Snapshot: graph.Snapshot{"A": {"X": 0.25}},
			Labels:   []float64{-0.5},
			Columns:  []string{"A/X"},
		},
		{
			Index:    1,
			Path:     "/out/1.png",
			Duration: 3 * time.Second,
			Attempts: 2,
			Snapshot: graph.Snapshot{"A": {"X": 0.75}},
			Labels:   []float64{0.5},
			Columns:  []string{"A/X"},
		},
	}
	for _, s := range samples {
		require.NoError(t, db.RecordSample(ctx, "r1", s))
	}
	require.NoError(t, db.FinishRun(ctx, "r1", render.RunOutcome{
		Finished: t0.Add(5 * time.Second),
		Samples:  2,
		Total:    5 * time.Second,
	}))

	run, err = db.Run(ctx, "r1")
	require.NoError(t, err)
	want := Run{
		ID:        "r1",
		Kind:      render.RunKindRender,
		Graph:     "mat",
		Strategy:  "random",
		Samples:   2,
		Seed:      1<<63 + 5,
		OutputDir: "/out",
		Started:   t0,
		Finished:  t0.Add(5 * time.Second),
		Completed: 2,
		Total:     5 * time.Second,
	}
	if diff := cmp.Diff(want, run); diff != "" {
		t.Errorf("Run mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "done", run.Status())

	got, err := db.Samples(ctx, "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(samples, got); diff != "" {
		t.Errorf("Samples mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordSample_DuplicateIndex(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.StartRun(ctx, render.RunInfo{ID: "r1", Kind: render.RunKindRender, Started: t0}))

	rec := render.SampleRecord{Index: 0, Path: "a.png"}
	require.NoError(t, db.RecordSample(ctx, "r1", rec))
	assert.Error(t, db.RecordSample(ctx, "r1", rec))
}

func TestRecordSample_UnknownRun(t *testing.T) {
	db := newTestDB(t)
	err := db.RecordSample(context.Background(), "missing", render.SampleRecord{Path: "a.png"})
	assert.Error(t, err, "foreign key must reject samples without a run")
}

func TestDecisions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.StartRun(ctx, render.RunInfo{ID: "e1", Kind: eliminate.RunKindEliminate, Samples: 2, Started: t0}))

	decisions := []eliminate.Decision{
		{Node: "A", Input: "X", Name: "X", Kind: graph.KindScalar, Channel: graph.AllChannels, Kept: true, MaxNorm: 1.5, Loops: 1, Explained: 0.98},
		{Node: "B", Input: "C", Name: "Color", Kind: graph.KindColor, Channel: 2, MaxNorm: 0, Loops: 4},
	}
	for _, d := range decisions {
		require.NoError(t, db.RecordDecision(ctx, "e1", d))
	}
	require.NoError(t, db.FinishRun(ctx, "e1", render.RunOutcome{Finished: t0.Add(time.Minute), Samples: 2, Err: "boom"}))

	got, err := db.Decisions(ctx, "e1")
	require.NoError(t, err)
	if diff := cmp.Diff(decisions, got); diff != "" {
		t.Errorf("Decisions mismatch (-want +got):\n%s", diff)
	}

	run, err := db.Run(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status())
	assert.Equal(t, "boom", run.Err)
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, kind := range []string{render.RunKindRender, eliminate.RunKindEliminate, render.RunKindRender} {
		require.NoError(t, db.StartRun(ctx, render.RunInfo{
			ID:      string(rune('a' + i)),
			Kind:    kind,
			Started: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	ids := func(runs []Run) []string {
		var out []string
		for _, r := range runs {
			out = append(out, r.ID)
		}
		return out
	}

	all, err := db.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	renders, err := db.ListRuns(ctx, render.RunKindRender, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(renders))

	latest, err := db.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(latest))
}

func TestRunNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Run(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, db.FinishRun(ctx, "nope", render.RunOutcome{Finished: t0}), ErrRunNotFound)
	assert.ErrorIs(t, db.DeleteRun(ctx, "nope"), ErrRunNotFound)
}

func TestDeleteRunCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.StartRun(ctx, render.RunInfo{ID: "r1", Kind: render.RunKindRender, Started: t0}))
	require.NoError(t, db.RecordSample(ctx, "r1", render.SampleRecord{Path: "a.png"}))

	require.NoError(t, db.DeleteRun(ctx, "r1"))
	samples, err := db.Samples(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, samples)
}
