package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/nodesweep/internal/config"
	"github.com/banshee-data/nodesweep/internal/db"
	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/setup"
	"github.com/banshee-data/nodesweep/internal/sweep"
)

var errNoRenderer = errors.New("no renderer configured: set render_command or render_address")

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig reads --config and applies command line overrides.
func loadConfig(c *cli.Context) (*config.RunConfig, error) {
	cfg := config.EmptyRunConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadRunConfig(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("samples") {
		n := c.Int("samples")
		cfg.Samples = &n
	}
	if c.IsSet("strategy") {
		s := c.String("strategy")
		cfg.Strategy = &s
	}
	if c.IsSet("out") && c.Command.Name == "render" {
		out := c.String("out")
		cfg.OutputDir = &out
	}
	if c.IsSet("seed") {
		seed := c.Uint64("seed")
		cfg.Seed = &seed
	}
	if c.IsSet("db") {
		path := c.String("db")
		cfg.DBPath = &path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadGraph imports --graph and applies --setup when given.
func loadGraph(c *cli.Context) (*graph.Graph, error) {
	path := c.String("graph")
	if path == "" {
		return nil, errors.New("--graph is required")
	}
	g, err := importFile(path)
	if err != nil {
		return nil, err
	}
	if s := c.String("setup"); s != "" {
		if err := setup.LoadFile(fsutil.OSFileSystem{}, s, g); err != nil {
			return nil, err
		}
	}
	specs := c.StringSlice("range")
	if len(specs) == 0 {
		return g, nil
	}
	overrides := make([]sweep.Override, 0, len(specs))
	for _, spec := range specs {
		o, err := sweep.ParseOverride(spec)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	n := sweep.ApplyOverrides(g, overrides)
	monitoring.Logf("Applied %d of %d range overrides", n, len(overrides))
	return g, nil
}

func importFile(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := setup.DecodeHostGraph(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return setup.Import(h)
}

// newRenderer builds the configured renderer. The returned close func is
// never nil.
func newRenderer(cfg *config.RunConfig) (render.Renderer, func(), error) {
	if addr := cfg.GetRenderAddress(); addr != "" {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to dial renderer %s: %w", addr, err)
		}
		return render.NewRemoteRenderer(conn), func() { conn.Close() }, nil
	}
	if command := cfg.GetRenderCommand(); command != "" {
		r := render.NewExecRenderer(command, cfg.GetWidth(), cfg.GetHeight())
		r.KeepSnapshot = cfg.GetKeepSnapshots()
		return r, func() {}, nil
	}
	return nil, func() {}, errNoRenderer
}

// newReporter logs progress and, with an MQTT broker configured, also
// publishes it.
func newReporter(cfg *config.RunConfig) (progress.Reporter, func(), error) {
	broker := cfg.GetMQTTBroker()
	if broker == "" {
		return progress.LogReporter{}, func() {}, nil
	}
	client, err := progress.Dial(broker, "nodesweep-"+uuid.NewString()[:8])
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}
	rep := progress.Multi{
		progress.LogReporter{},
		progress.NewMQTTReporter(client, cfg.GetMQTTTopic()),
	}
	return rep, func() { client.Disconnect(250) }, nil
}

// openStore opens the run store at path, or returns nil when path is empty.
func openStore(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	store, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store %s: %w", path, err)
	}
	monitoring.Logf("Recording runs to %s", path)
	return store, nil
}

func requireStore(c *cli.Context) (*db.DB, error) {
	path := c.String("db")
	if path == "" {
		return nil, errors.New("--db is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return openStore(path)
}
