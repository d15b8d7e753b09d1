package synth

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
)

func TestRenderer_PureFunctionOfInputs(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	r := New(fsys, "A/X", "B/Color")

	snap := graph.Snapshot{
		"A": {"X": 0.5, "Unused": 1.0},
		"B": {"Color": []any{0.2, 0.4, 0.6, 1.0}},
	}
	ctx := context.Background()
	require.NoError(t, r.Render(ctx, snap, "0.png"))
	require.NoError(t, r.Render(ctx, snap, "1.png"))

	snap["A"]["Unused"] = 7.0
	require.NoError(t, r.Render(ctx, snap, "2.png"))

	snap["A"]["X"] = 0.9
	require.NoError(t, r.Render(ctx, snap, "3.png"))

	read := func(name string) []byte {
		b, err := fsys.ReadFile(name)
		require.NoError(t, err)
		return b
	}
	assert.Equal(t, read("0.png"), read("1.png"))
	assert.Equal(t, read("0.png"), read("2.png"), "inputs not listed have no effect")
	assert.NotEqual(t, read("0.png"), read("3.png"))

	img, err := png.Decode(bytes.NewReader(read("3.png")))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}

func TestRenderer_MissingInputReadsZero(t *testing.T) {
	r := &Renderer{Width: 4, Height: 2, Inputs: []string{"A/X"}}
	a, err := r.Image(graph.Snapshot{})
	require.NoError(t, err)
	b, err := r.Image(graph.Snapshot{"A": {"X": 0.0}})
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, uint8(128), a.Pix[0])
}

func TestRenderer_Errors(t *testing.T) {
	_, err := (&Renderer{Inputs: []string{"no-slash"}}).Image(graph.Snapshot{})
	assert.Error(t, err)

	_, err = (&Renderer{Inputs: []string{"A/X"}}).Image(graph.Snapshot{"A": {"X": "str"}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = New(fsutil.NewMemoryFileSystem()).Render(ctx, graph.Snapshot{}, "x.png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDemoGraph(t *testing.T) {
	g := DemoGraph()
	for _, key := range DemoInputs() {
		node, id, _ := strings.Cut(key, "/")
		_, err := g.Lookup(node, id)
		assert.NoError(t, err, key)
	}
	assert.Equal(t, 10, g.EnabledChannelCount())
}
