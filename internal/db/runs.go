package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/render"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Graph     string    `json:"graph"`
	Strategy  string    `json:"strategy,omitempty"`
	Samples   int       `json:"samples"`
	Seed      uint64    `json:"seed"`
	OutputDir string    `json:"output_dir"`
	Started   time.Time `json:"started"`
	// Finished is zero while the run is in progress or if it was abandoned.
	Finished  time.Time     `json:"finished"`
	Completed int           `json:"completed"`
	Total     time.Duration `json:"total_ns"`
	Err       string        `json:"error,omitempty"`
}

// Status is "running", "failed" or "done".
func (r Run) Status() string {
	switch {
	case r.Finished.IsZero():
		return "running"
	case r.Err != "":
		return "failed"
	}
	return "done"
}

// Ensure DB satisfies both run recorders.
var (
	_ render.Recorder    = (*DB)(nil)
	_ eliminate.Recorder = (*DB)(nil)
)

// StartRun inserts a new run row.
func (db *DB) StartRun(ctx context.Context, info render.RunInfo) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (run_id, kind, graph, strategy, samples, seed, output_dir, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Kind, info.Graph, info.Strategy, info.Samples,
		int64(info.Seed), info.OutputDir, info.Started.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", info.ID, err)
	}
	return nil
}

// RecordSample stores one rendered sample of a run.
func (db *DB) RecordSample(ctx context.Context, runID string, rec render.SampleRecord) error {
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	labels, err := json.Marshal(rec.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	columns, err := json.Marshal(rec.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO samples (run_id, idx, path, duration_ns, attempts, snapshot, labels, columns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Index, rec.Path, int64(rec.Duration), rec.Attempts,
		string(snap), string(labels), string(columns),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample %d of run %s: %w", rec.Index, runID, err)
	}
	return nil
}

// RecordDecision stores one elimination verdict.
func (db *DB) RecordDecision(ctx context.Context, runID string, d eliminate.Decision) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO decisions (run_id, node, input, name, kind, channel, kept, max_norm, loops, explained)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, d.Node, d.Input, d.Name, d.Kind.String(), d.Channel, d.Kept,
		d.MaxNorm, d.Loops, d.Explained,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision for %s/%s: %w", d.Node, d.Input, err)
	}
	return nil
}

// FinishRun closes a run with its outcome.
func (db *DB) FinishRun(ctx context.Context, runID string, out render.RunOutcome) error {
	res, err := db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, completed = ?, total_ns = ?, error = ?
		WHERE run_id = ?`,
		out.Finished.UnixNano(), out.Samples, int64(out.Total), out.Err, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, kind, graph, strategy, samples, seed, output_dir,
	started_at, finished_at, completed, total_ns, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r              Run
		seed           int64
		started, total int64
		finished       sql.NullInt64
	)
	err := s.Scan(&r.ID, &r.Kind, &r.Graph, &r.Strategy, &r.Samples, &seed, &r.OutputDir,
		&started, &finished, &r.Completed, &total, &r.Err)
	if err != nil {
		return Run{}, err
	}
	r.Seed = uint64(seed)
	r.Started = time.Unix(0, started).UTC()
	if finished.Valid {
		r.Finished = time.Unix(0, finished.Int64).UTC()
	}
	r.Total = time.Duration(total)
	return r, nil
}

// ListRuns returns the most recent runs first. An empty kind matches every
// kind; limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, kind string, limit int) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if kind != "" {
		where = append(where, "kind = ?")
		args = append(args, kind)
	}
	q := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, run_id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run by ID.
func (db *DB) Run(ctx context.Context, id string) (Run, error) {
	row := db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Samples returns the samples of a run in render order.
func (db *DB) Samples(ctx context.Context, runID string) ([]render.SampleRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT idx, path, duration_ns, attempts, snapshot, labels, columns
		FROM samples WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []render.SampleRecord
	for rows.Next() {
		var (
			rec                   render.SampleRecord
			dur                   int64
			snap, labels, columns string
		)
		if err := rows.Scan(&rec.Index, &rec.Path, &dur, &rec.Attempts, &snap, &labels, &columns); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(dur)
		if err := json.Unmarshal([]byte(snap), &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("sample %d: bad snapshot: %w", rec.Index, err)
		}
		if err := json.Unmarshal([]byte(labels), &rec.Labels); err != nil {
			return nil, fmt.Errorf("sample %d: bad labels: %w", rec.Index, err)
		}
		if err := json.Unmarshal([]byte(columns), &rec.Columns); err != nil {
			return nil, fmt.Errorf("sample %d: bad columns: %w", rec.Index, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Decisions returns the decisions of an elimination run in the order they
// were made.
func (db *DB) Decisions(ctx context.Context, runID string) ([]eliminate.Decision, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT node, input, name, kind, channel, kept, max_norm, loops, explained
		FROM decisions WHERE run_id = ? ORDER BY decision_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []eliminate.Decision
	for rows.Next() {
		var (
			d    eliminate.Decision
			kind string
		)
		if err := rows.Scan(&d.Node, &d.Input, &d.Name, &kind, &d.Channel, &d.Kept, &d.MaxNorm, &d.Loops, &d.Explained); err != nil {
			return nil, err
		}
		if d.Kind, err = graph.ParseKind(kind); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything recorded under it.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
