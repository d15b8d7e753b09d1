package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/banshee-data/nodesweep/internal/config"
	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/report"
	"github.com/banshee-data/nodesweep/internal/setup"
	"github.com/banshee-data/nodesweep/internal/sweep"
)

// runEnv is everything a render or elimination run is wired to.
type runEnv struct {
	cfg      *config.RunConfig
	graph    *graph.Graph
	renderer render.Renderer
	reporter progress.Reporter
	store    *db.DB
	closers  []func()
}

func (e *runEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newRunEnv(c *cli.Context) (*runEnv, error) {
	env := &runEnv{}
	var err error
	if env.cfg, err = loadConfig(c); err != nil {
		return nil, err
	}
	if env.graph, err = loadGraph(c); err != nil {
		return nil, err
	}

	r, closeRenderer, err := newRenderer(env.cfg)
	if err != nil {
		return nil, err
	}
	env.renderer = r
	env.closers = append(env.closers, closeRenderer)

	rep, closeReporter, err := newReporter(env.cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.reporter = rep
	env.closers = append(env.closers, closeReporter)

	if env.store, err = openStore(env.cfg.GetDBPath()); err != nil {
		env.Close()
		return nil, err
	}
	if env.store != nil {
		env.closers = append(env.closers, func() { env.store.Close() })
	}
	return env, nil
}

func renderRun(c *cli.Context) error {
	env, err := newRunEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	opts := []render.Option{render.WithReporter(env.reporter)}
	if env.store != nil {
		opts = append(opts, render.WithRecorder(env.store))
	}
	driver := render.NewDriver(env.renderer, opts...)

	ctx, stop := signalContext()
	defer stop()
	res, err := driver.Run(ctx, env.graph, env.cfg.RunOptions())
	if err != nil {
		return err
	}
	report.SamplesTable(c.App.Writer, res.Samples)
	fmt.Fprintf(c.App.Writer, "run %s: %d artifacts in %s\n", res.RunID, len(res.Artifacts), env.cfg.GetOutputDir())
	return nil
}

func eliminateRun(c *cli.Context) error {
	env, err := newRunEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	opts := []eliminate.Option{eliminate.WithReporter(env.reporter)}
	if env.store != nil {
		opts = append(opts, eliminate.WithRecorder(env.store))
	}
	elimOpts := env.cfg.EliminateOptions()
	engine, err := eliminate.NewEngine(env.renderer, sweep.NewSampler(env.cfg.GetSeed()), elimOpts, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	summary, err := engine.Run(ctx, env.graph)
	if err != nil {
		return err
	}
	report.DecisionTable(c.App.Writer, summary.Decisions)

	if path := c.String("chart"); path != "" && len(summary.Decisions) > 0 {
		if err := report.SaveDistanceChart(path, summary.Decisions, elimOpts.NormThresh); err != nil {
			return err
		}
		monitoring.Logf("Distance chart written to %s", path)
	}

	out := c.String("out")
	if out == "" {
		out = c.String("setup")
	}
	if out == "" {
		out = "setup.json"
	}
	if err := setup.SaveFile(fsutil.OSFileSystem{}, out, env.graph); err != nil {
		return err
	}
	monitoring.Logf("Reduced setup written to %s (%d channels enabled)", out, env.graph.EnabledChannelCount())
	return nil
}
