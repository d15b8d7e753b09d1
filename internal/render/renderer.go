// Package render drives a batch of sequential renders over a parameter graph
// and holds the adapters that reach an external renderer.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// Renderer produces one image at outputPath from the given parameter
// snapshot. It must not return until the image is fully written.
type Renderer interface {
	Render(ctx context.Context, snap graph.Snapshot, outputPath string) error
}

// FuncRenderer adapts a function to Renderer.
type FuncRenderer func(ctx context.Context, snap graph.Snapshot, outputPath string) error

// Render calls f.
func (f FuncRenderer) Render(ctx context.Context, snap graph.Snapshot, outputPath string) error {
	return f(ctx, snap, outputPath)
}

// ExecRenderer hands each render to an external command. The snapshot is
// written as JSON to outputPath + ".json" and each argument of Command has
// the placeholders {snapshot}, {output}, {width} and {height} substituted.
type ExecRenderer struct {
	Command []string
	Width   int
	Height  int
	// Dir is the working directory of the command; empty uses the
	// current directory.
	Dir string
	// KeepSnapshot leaves the snapshot JSON beside the image.
	KeepSnapshot bool
	// FS receives the snapshot file; nil uses the OS filesystem.
	FS fsutil.FileSystem
}

// NewExecRenderer splits command on whitespace into an ExecRenderer.
func NewExecRenderer(command string, width, height int) *ExecRenderer {
	return &ExecRenderer{Command: strings.Fields(command), Width: width, Height: height}
}

// Render implements Renderer.
func (r *ExecRenderer) Render(ctx context.Context, snap graph.Snapshot, outputPath string) error {
	if len(r.Command) == 0 {
		return errors.New("exec renderer: no command configured")
	}

	snapPath := outputPath + ".json"
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	fsys := r.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if err := fsys.WriteFile(snapPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snapPath, err)
	}
	if !r.KeepSnapshot {
		defer func() {
			if err := fsys.RemoveAll(snapPath); err != nil {
				monitoring.Logf("WARNING: remove snapshot %s: %v", snapPath, err)
			}
		}()
	}

	repl := strings.NewReplacer(
		"{snapshot}", snapPath,
		"{output}", outputPath,
		"{width}", strconv.Itoa(r.Width),
		"{height}", strconv.Itoa(r.Height),
	)
	args := make([]string, len(r.Command))
	for i, a := range r.Command {
		args[i] = repl.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("render %s: %w: %s", outputPath, err, msg)
		}
		return fmt.Errorf("render %s: %w", outputPath, err)
	}
	return nil
}
