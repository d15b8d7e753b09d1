package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli"

	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/httputil"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/report"
	"github.com/banshee-data/nodesweep/internal/security"
)

func listRuns(c *cli.Context) error {
	store, err := requireStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), c.String("kind"), c.Int("limit"))
	if err != nil {
		return err
	}
	report.RunsTable(c.App.Writer, runs)
	return nil
}

func writeReport(c *cli.Context) error {
	runID := c.String("run")
	if runID == "" {
		return errors.New("--run is required")
	}
	store, err := requireStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	pg, err := report.Load(context.Background(), store, runID)
	if err != nil {
		return err
	}
	pg.Threshold = c.Float64("threshold")

	out := c.String("out")
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, pg); err != nil {
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	monitoring.Logf("Report for run %s written to %s", runID, out)

	if len(pg.Decisions) > 0 {
		report.DecisionTable(c.App.Writer, pg.Decisions)
		if path := c.String("chart"); path != "" {
			return report.SaveDistanceChart(path, pg.Decisions, pg.Threshold)
		}
	} else {
		report.SamplesTable(c.App.Writer, pg.Samples)
	}
	return nil
}

// reportHandler serves the HTML report of /runs/{id}; threshold is read
// from the optional ?threshold= query.
func reportHandler(store *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, err := report.Load(r.Context(), store, r.PathValue("id"))
		if errors.Is(err, db.ErrRunNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if t := r.URL.Query().Get("threshold"); t != "" {
			if pg.Threshold, err = strconv.ParseFloat(t, 64); err != nil {
				http.Error(w, fmt.Sprintf("bad threshold: %v", err), http.StatusBadRequest)
				return
			}
		}
		var buf bytes.Buffer
		if err := report.WriteHTML(&buf, pg); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

func runsHandler(store *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.ListRuns(r.Context(), r.URL.Query().Get("kind"), 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		report.RunsTable(w, runs)
	}
}

// runDetail is the JSON body of /api/runs/{id}.
type runDetail struct {
	Run       db.Run                `json:"run"`
	Samples   []render.SampleRecord `json:"samples"`
	Decisions []eliminate.Decision  `json:"decisions"`
}

func loadRun(r *http.Request, store *db.DB) (db.Run, error) {
	run, err := store.Run(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		return run, httputil.Errorf(http.StatusNotFound, "%w", err)
	}
	return run, err
}

func apiRuns(store *db.DB) httputil.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				return httputil.Errorf(http.StatusBadRequest, "bad limit %q", l)
			}
			limit = n
		}
		runs, err := store.ListRuns(r.Context(), r.URL.Query().Get("kind"), limit)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []db.Run{}
		}
		httputil.WriteJSON(w, http.StatusOK, runs)
		return nil
	}
}

func apiRun(store *db.DB) httputil.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		run, err := loadRun(r, store)
		if err != nil {
			return err
		}
		detail := runDetail{Run: run}
		if detail.Samples, err = store.Samples(r.Context(), run.ID); err != nil {
			return err
		}
		if detail.Decisions, err = store.Decisions(r.Context(), run.ID); err != nil {
			return err
		}
		httputil.WriteJSON(w, http.StatusOK, detail)
		return nil
	}
}

// sampleFileHandler serves the image of one recorded sample. The stored
// path must stay inside the run's output directory.
func sampleFileHandler(store *db.DB) httputil.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		run, err := loadRun(r, store)
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			return httputil.Errorf(http.StatusBadRequest, "bad sample index %q", r.PathValue("index"))
		}
		samples, err := store.Samples(r.Context(), run.ID)
		if err != nil {
			return err
		}
		for _, s := range samples {
			if s.Index != idx {
				continue
			}
			if err := security.WithinDir(s.Path, run.OutputDir); err != nil {
				return httputil.Errorf(http.StatusForbidden, "%w", err)
			}
			http.ServeFile(w, r, s.Path)
			return nil
		}
		return httputil.Errorf(http.StatusNotFound, "run %s has no sample %d", run.ID, idx)
	}
}

func newServeMux(store *db.DB) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	mux.HandleFunc("GET /runs", runsHandler(store))
	mux.HandleFunc("GET /runs/{id}", reportHandler(store))
	mux.Handle("GET /runs/{id}/samples/{index}", sampleFileHandler(store))
	mux.Handle("GET /api/runs", apiRuns(store))
	mux.Handle("GET /api/runs/{id}", apiRun(store))
	return mux, nil
}

func serve(c *cli.Context) error {
	store, err := requireStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	mux, err := newServeMux(store)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr: c.String("listen"),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			monitoring.Logf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		}),
	}

	ctx, stop := signalContext()
	defer stop()

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("Serving %s on %s", store.Path(), server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
