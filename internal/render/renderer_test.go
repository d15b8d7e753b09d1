package render

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/graph"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRenderer_Placeholders(t *testing.T) {
	requireShell(t)
	muteLogs(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "0.png")

	r := &ExecRenderer{
		Command: []string{"sh", "-c", "cp {snapshot} {output} && echo {width}x{height} > {output}.size"},
		Width:   64,
		Height:  32,
	}
	snap := graph.Snapshot{"A": {"X": 0.25}}
	require.NoError(t, r.Render(context.Background(), snap, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var got graph.Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, snap, got)

	size, err := os.ReadFile(out + ".size")
	require.NoError(t, err)
	assert.Equal(t, "64x32\n", string(size))

	_, err = os.Stat(out + ".json")
	assert.True(t, os.IsNotExist(err), "snapshot file removed after render")
}

func TestExecRenderer_KeepSnapshot(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "1.png")
	r := &ExecRenderer{Command: []string{"sh", "-c", "touch {output}"}, KeepSnapshot: true}
	require.NoError(t, r.Render(context.Background(), graph.Snapshot{}, out))
	assert.FileExists(t, out+".json")
}

func TestExecRenderer_Failure(t *testing.T) {
	requireShell(t)
	muteLogs(t)
	r := &ExecRenderer{Command: []string{"sh", "-c", "echo boom >&2; exit 3"}}
	err := r.Render(context.Background(), graph.Snapshot{}, filepath.Join(t.TempDir(), "x.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestExecRenderer_NoCommand(t *testing.T) {
	err := (&ExecRenderer{}).Render(context.Background(), graph.Snapshot{}, "x.png")
	assert.Error(t, err)
}

func TestNewExecRenderer_SplitsFields(t *testing.T) {
	r := NewExecRenderer("blender -b scene.blend --  {snapshot}", 128, 128)
	assert.Equal(t, []string{"blender", "-b", "scene.blend", "--", "{snapshot}"}, r.Command)
}
