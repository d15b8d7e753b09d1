// Command nodesweep samples, renders and prunes the parameters of a
// material node graph.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "nodesweep"
	app.Usage = "sample, render and eliminate material node parameters"
	app.Version = version.String()
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "suppress log output",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("quiet") {
			monitoring.SetLogger(nil)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:  "import",
			Usage: "convert a host graph description into a setup file",
			Description: `
Discover the tunable inputs of a host graph export (JSON), apply the default
enable rules and ranges, and write the result as a setup file.`,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "in, i", Usage: "host graph JSON"},
				cli.StringFlag{Name: "out, o", Value: "setup.json", Usage: "setup file to write"},
				cli.StringFlag{Name: "minmax", Usage: "also write the min/max file of enabled channels"},
			},
			Action: importGraph,
		},
		{
			Name:  "render",
			Usage: "render sampled parameter sets",
			Flags: append(graphFlags(), append(configFlags(),
				cli.IntFlag{Name: "samples, n", Usage: "number of renders (overrides config)"},
				cli.StringFlag{Name: "strategy", Usage: "random or consecutive (overrides config)"},
				cli.StringFlag{Name: "out, o", Usage: "output directory (overrides config)"},
			)...),
			Action: renderRun,
		},
		{
			Name:  "eliminate",
			Usage: "disable parameters with no visible effect",
			Description: `
For every enabled channel, render a handful of probe images across its range
while the other parameters are randomized, and disable the channel if the
images do not move apart in PCA space. The reduced setup is then saved.`,
			Flags: append(graphFlags(), append(configFlags(),
				cli.StringFlag{Name: "out, o", Usage: "setup file to write (default: --setup, or setup.json)"},
				cli.StringFlag{Name: "chart", Usage: "write a distance chart (.png, .svg or .pdf)"},
			)...),
			Action: eliminateRun,
		},
		{
			Name:  "setup",
			Usage: "save, load and apply setup files",
			Subcommands: []cli.Command{
				{
					Name:  "save",
					Usage: "write the current state of a graph as a setup file",
					Flags: append(graphFlags(),
						cli.StringFlag{Name: "out, o", Value: "setup.json", Usage: "setup file to write"},
					),
					Action: setupSave,
				},
				{
					Name:  "load",
					Usage: "apply a setup file and list the enabled parameters",
					Flags: append(graphFlags(),
						cli.StringFlag{Name: "minmax", Usage: "write the min/max file of enabled channels"},
					),
					Action: setupLoad,
				},
				{
					Name:  "defaults",
					Usage: "apply only the default values of a setup file",
					Flags: append(graphFlags(),
						cli.StringFlag{Name: "defaults", Usage: "setup file to read default values from"},
						cli.StringFlag{Name: "out, o", Value: "setup.json", Usage: "setup file to write"},
					),
					Action: setupDefaults,
				},
			},
		},
		{
			Name:   "config",
			Usage:  "print the default run configuration as YAML",
			Action: printDefaultConfig,
		},
		{
			Name:  "runs",
			Usage: "list stored runs",
			Flags: []cli.Flag{
				dbFlag(),
				cli.StringFlag{Name: "kind", Usage: "only list render or eliminate runs"},
				cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum number of runs, 0 for all"},
			},
			Action: listRuns,
		},
		{
			Name:  "report",
			Usage: "write an HTML report of a stored run",
			Flags: []cli.Flag{
				dbFlag(),
				cli.StringFlag{Name: "run", Usage: "run ID"},
				cli.StringFlag{Name: "out, o", Value: "report.html", Usage: "HTML file to write"},
				cli.StringFlag{Name: "chart", Usage: "also write the distance chart of an elimination run"},
				cli.Float64Flag{Name: "threshold", Value: 1.0, Usage: "norm threshold drawn on distance charts"},
			},
			Action: writeReport,
		},
		{
			Name:  "serve",
			Usage: "serve run reports and the SQL debug console",
			Description: `
Routes:
   GET /runs                          text list of runs (?kind=)
   GET /runs/{id}                     HTML report (?threshold=)
   GET /runs/{id}/samples/{index}     rendered image of one sample
   GET /api/runs                      JSON list of runs (?kind=, ?limit=)
   GET /api/runs/{id}                 JSON run with samples and decisions
   GET /debug/tailsql/                SQL console over the run database`,
			Flags: []cli.Flag{
				dbFlag(),
				cli.StringFlag{Name: "listen", Value: ":8090", Usage: "listen address"},
			},
			Action: serve,
		},
		{
			Name:  "synth-server",
			Usage: "serve the synthetic renderer over gRPC",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen", Value: ":50051", Usage: "listen address"},
				cli.StringSliceFlag{Name: "input", Value: &cli.StringSlice{}, Usage: "node/identifier read by the renderer (default: demo inputs)"},
				cli.IntFlag{Name: "width", Value: 32, Usage: "image width"},
				cli.IntFlag{Name: "height", Value: 32, Usage: "image height"},
			},
			Action: synthServer,
		},
		{
			Name:  "demo",
			Usage: "render and eliminate a built-in graph with the synthetic renderer",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out, o", Value: "nodesweep-demo", Usage: "output directory"},
				cli.IntFlag{Name: "samples, n", Value: 5, Usage: "number of renders"},
				cli.Uint64Flag{Name: "seed", Value: 1, Usage: "random seed"},
			},
			Action: demo,
		},
	}
	return app
}

func graphFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "graph, g", Usage: "host graph JSON"},
		cli.StringFlag{Name: "setup, s", Usage: "setup file applied after import"},
		cli.StringSliceFlag{Name: "range, r", Usage: "range override node/identifier[.channel]=min:max (repeatable)"},
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "run config (.json, .yaml or .yml)"},
		cli.Uint64Flag{Name: "seed", Usage: "random seed (overrides config)"},
		dbFlag(),
	}
}

func dbFlag() cli.Flag {
	return cli.StringFlag{Name: "db", Usage: "SQLite run store"}
}
