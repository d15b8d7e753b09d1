package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/nodesweep/internal/config"
	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/setup"
)

func importGraph(c *cli.Context) error {
	in := c.String("in")
	if in == "" {
		return errors.New("--in is required")
	}
	g, err := importFile(in)
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := setup.SaveFile(fsutil.OSFileSystem{}, out, g); err != nil {
		return err
	}
	monitoring.Logf("Imported %d nodes of %s, %d channels enabled, setup written to %s",
		len(g.Nodes), g.Name, g.EnabledChannelCount(), out)
	if path := c.String("minmax"); path != "" {
		return writeMinMax(path, g)
	}
	return nil
}

func setupSave(c *cli.Context) error {
	g, err := loadGraph(c)
	if err != nil {
		return err
	}
	return setup.SaveFile(fsutil.OSFileSystem{}, c.String("out"), g)
}

func setupLoad(c *cli.Context) error {
	g, err := loadGraph(c)
	if err != nil {
		return err
	}
	recs := setup.MinMax(g)

	table := tablewriter.NewWriter(c.App.Writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Node", "Input", "Type", "Channel", "Min", "Max"})
	for _, r := range recs {
		ch := "-"
		if r.ISub != setup.ScalarSub {
			ch = fmt.Sprintf("%d", r.ISub)
		}
		table.Append([]string{
			r.NodeName,
			r.InputName,
			r.Type.String(),
			ch,
			fmt.Sprintf("%g", r.UserMin),
			fmt.Sprintf("%g", r.UserMax),
		})
	}
	table.SetFooter([]string{"", "", "", "", "ENABLED", fmt.Sprintf("%d", len(recs))})
	table.Render()

	if path := c.String("minmax"); path != "" {
		return writeMinMax(path, g)
	}
	return nil
}

func setupDefaults(c *cli.Context) error {
	defaults := c.String("defaults")
	if defaults == "" {
		return errors.New("--defaults is required")
	}
	g, err := loadGraph(c)
	if err != nil {
		return err
	}
	fsys := fsutil.OSFileSystem{}
	data, err := setup.ReadFile(fsys, defaults)
	if err != nil {
		return err
	}
	if err := setup.ApplyDefaults(bytes.NewReader(data), g); err != nil {
		return fmt.Errorf("%s: %w", defaults, err)
	}
	return setup.SaveFile(fsys, c.String("out"), g)
}

func printDefaultConfig(c *cli.Context) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(config.DefaultRunConfig()); err != nil {
		return err
	}
	return enc.Close()
}

func writeMinMax(path string, g *graph.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := setup.WriteMinMax(f, setup.MinMax(g)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
