package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/urfave/cli"
	"google.golang.org/grpc"

	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/report"
	"github.com/banshee-data/nodesweep/internal/setup"
	"github.com/banshee-data/nodesweep/internal/sweep"
	"github.com/banshee-data/nodesweep/internal/synth"
)

// demoOutputs are the files a demo run leaves in its output directory.
type demoOutputs struct {
	Renders string
	Scratch string
	DB      string
	Setup   string
	Chart   string
	Report  string
}

func newDemoOutputs(dir string) demoOutputs {
	return demoOutputs{
		Renders: filepath.Join(dir, "renders"),
		Scratch: filepath.Join(dir, "scratch"),
		DB:      filepath.Join(dir, "runs.db"),
		Setup:   filepath.Join(dir, "setup.json"),
		Chart:   filepath.Join(dir, "distances.png"),
		Report:  filepath.Join(dir, "report.html"),
	}
}

func demo(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()
	return runDemo(ctx, c, newDemoOutputs(c.String("out")), c.Int("samples"), c.Uint64("seed"))
}

func runDemo(ctx context.Context, c *cli.Context, out demoOutputs, samples int, seed uint64) error {
	if err := os.MkdirAll(filepath.Dir(out.DB), 0o755); err != nil {
		return err
	}
	store, err := db.NewDB(out.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	fsys := fsutil.OSFileSystem{}
	g := synth.DemoGraph()
	r := synth.New(fsys, synth.DemoInputs()...)
	rep := progress.LogReporter{}

	driver := render.NewDriver(r, render.WithReporter(rep), render.WithRecorder(store))
	res, err := driver.Run(ctx, g, render.RunOptions{
		OutputDir: out.Renders,
		Samples:   samples,
		Strategy:  sweep.StrategyRandom,
		Seed:      seed,
	})
	if err != nil {
		return err
	}
	report.SamplesTable(c.App.Writer, res.Samples)

	opts := eliminate.DefaultOptions()
	opts.ScratchDir = out.Scratch
	engine, err := eliminate.NewEngine(r, sweep.NewSampler(seed), opts,
		eliminate.WithReporter(rep),
		eliminate.WithRecorder(store),
	)
	if err != nil {
		return err
	}
	summary, err := engine.Run(ctx, g)
	if err != nil {
		return err
	}
	report.DecisionTable(c.App.Writer, summary.Decisions)

	if err := setup.SaveFile(fsys, out.Setup, g); err != nil {
		return err
	}
	if err := report.SaveDistanceChart(out.Chart, summary.Decisions, opts.NormThresh); err != nil {
		return err
	}
	pg, err := report.Load(ctx, store, summary.RunID)
	if err != nil {
		return err
	}
	pg.Threshold = opts.NormThresh
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, pg); err != nil {
		return err
	}
	if err := os.WriteFile(out.Report, buf.Bytes(), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%d of %d channels disabled; setup %s, chart %s, report %s\n",
		len(summary.Disabled), len(summary.Decisions), out.Setup, out.Chart, out.Report)
	return nil
}

func synthServer(c *cli.Context) error {
	inputs := c.StringSlice("input")
	if len(inputs) == 0 {
		inputs = synth.DemoInputs()
	}
	r := synth.New(fsutil.OSFileSystem{}, inputs...)
	r.Width, r.Height = c.Int("width"), c.Int("height")

	lis, err := net.Listen("tcp", c.String("listen"))
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	render.RegisterRenderService(s, r)

	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		monitoring.Logf("shutting down render server...")
		s.GracefulStop()
	}()

	monitoring.Logf("Synthetic renderer listening on %s, reading %v", lis.Addr(), inputs)
	return s.Serve(lis)
}
