package sweep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nodesweep/internal/graph"
)

func TestLinspace(t *testing.T) {
	testCases := []struct {
		name     string
		min, max float64
		n        int
		expected []float64
	}{
		{"zero", 0, 1, 0, nil},
		{"negative_count", 0, 1, -3, nil},
		{"single", 2, 5, 1, []float64{2}},
		{"pair", 2, 5, 2, []float64{2, 5}},
		{"five", 0, 1, 5, []float64{0, 0.25, 0.5, 0.75, 1}},
		{"descending", 1, -1, 3, []float64{1, 0, -1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDeltaSlice(t, tc.expected, Linspace(tc.min, tc.max, tc.n), 1e-12)
		})
	}
}

func TestLinspace_EndpointsInclusive(t *testing.T) {
	for n := 2; n <= 50; n++ {
		vals := Linspace(-0.3, 7.1, n)
		require.Len(t, vals, n)
		assert.Equal(t, -0.3, vals[0], "n=%d", n)
		assert.Equal(t, 7.1, vals[n-1], "n=%d", n)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 1.0, Normalize(42, 3, 3), "degenerate range")
	assert.Equal(t, 1.0, Normalize(-7, 0, 0), "degenerate range")

	for _, r := range [][2]float64{{0, 1}, {-5, 5}, {2, 10}, {0.1, 0.2}} {
		lo, hi := r[0], r[1]
		assert.InDelta(t, -1.0, Normalize(lo, lo, hi), 1e-12)
		assert.InDelta(t, 1.0, Normalize(hi, lo, hi), 1e-12)
		assert.InDelta(t, 0.0, Normalize((lo+hi)/2, lo, hi), 1e-12)

		v := lo + 0.3*(hi-lo)
		assert.InDelta(t, v, Denormalize(Normalize(v, lo, hi), lo, hi), 1e-12)
	}
}

func TestColorClamp(t *testing.T) {
	for _, x := range []float64{-3.25, -1, -0.5, -0.125, 0, 0.25, 0.875, 1, 1.75, 12.5} {
		c := ColorClamp(x)
		assert.GreaterOrEqual(t, c, 0.0, "x=%g", x)
		assert.Less(t, c, 1.0, "x=%g", x)
		assert.Equal(t, c, ColorClamp(x+1.0), "x=%g", x)
	}
	assert.Equal(t, 0.75, ColorClamp(-0.25))
	assert.Equal(t, 0.0, ColorClamp(1))
	assert.Equal(t, 0.0, ColorClamp(-1e-20))
}

func TestLinspaceParam(t *testing.T) {
	t.Run("scalar_ignores_channel", func(t *testing.T) {
		p := graph.NewScalar("s", 0, -1, 1)
		got, err := LinspaceParam(p, 3, 0)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{-1, 0, 1}}, got)
	})

	t.Run("integer_rounds", func(t *testing.T) {
		p := graph.NewInteger("i", 0, 0, 3)
		got, err := LinspaceParam(p, 4, graph.AllChannels)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{0, 1, 2, 3}}, got)
	})

	t.Run("vector_per_channel", func(t *testing.T) {
		p := graph.NewVector3("v", graph.Vec3{}, graph.Vec3{0, 10, 20}, graph.Vec3{1, 11, 21})
		all, err := LinspaceParam(p, 2, graph.AllChannels)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{0, 1}, {10, 11}, {20, 21}}, all)

		y, err := LinspaceParam(p, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{10, 11}}, y)
	})

	t.Run("color_expands_and_wraps", func(t *testing.T) {
		p := graph.NewColor("c", graph.Vec3{1, 0, 0}, graph.Vec3{0.9, 0.5, 0.5}, graph.Vec3{0.1, 0.1, 0.1})
		got, err := LinspaceParam(p, 3, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		// mean 0.9 +/- 0.2 spans 0.7..1.1, the top wraps to 0.1.
		assert.InDeltaSlice(t, []float64{0.7, 0.9, 0.1}, got[0], 1e-9)
		for _, v := range got[0] {
			assert.True(t, v >= 0 && v < 1)
		}
	})

	t.Run("channel_out_of_range", func(t *testing.T) {
		p := graph.NewVector3("v", graph.Vec3{}, graph.Vec3{}, graph.Vec3{1, 1, 1})
		_, err := LinspaceParam(p, 3, 3)
		assert.ErrorIs(t, err, graph.ErrChannelOutOfRange)
		_, err = LinspaceParam(p, 3, -2)
		assert.ErrorIs(t, err, graph.ErrChannelOutOfRange)
	})

	t.Run("unsupported_kind", func(t *testing.T) {
		p := &graph.Parameter{ID: "x", Kind: graph.Kind(7)}
		_, err := LinspaceParam(p, 3, 0)
		assert.ErrorIs(t, err, graph.ErrUnsupportedKind)
	})
}

func TestMeanStddev(t *testing.T) {
	m, s := MeanStddev(nil)
	assert.Zero(t, m)
	assert.Zero(t, s)

	m, s = MeanStddev([]float64{4})
	assert.Equal(t, 4.0, m)
	assert.Zero(t, s)

	m, s = MeanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, m, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), s, 1e-12)
}
