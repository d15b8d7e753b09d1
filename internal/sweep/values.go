// Package sweep walks the parameter space of a graph. It provides the pure
// value functions (linspace, normalization, wrap clamping), a seeded random
// sampler, the consecutive one-axis-at-a-time scheduler and the random
// transmutation pass used by the render driver and the elimination engine.
package sweep

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// ColorSpread is the number of standard deviations on either side of the
// mean covered when spacing color values.
const ColorSpread = 2.0

// Linspace returns n evenly spaced values from min to max inclusive.
// n == 1 yields [min]; n <= 0 yields nil.
func Linspace(min, max float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = min
		return out
	}
	return floats.Span(out, min, max)
}

// Normalize maps v linearly from [lo, hi] to [-1, 1]. A degenerate range
// returns 1.
func Normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 1.0
	}
	return (v-lo)/(hi-lo)*2 - 1
}

// Denormalize is the inverse of Normalize. A degenerate range returns lo.
func Denormalize(label, lo, hi float64) float64 {
	if hi == lo {
		return lo
	}
	return (label+1)/2*(hi-lo) + lo
}

// ColorClamp wraps x into [0, 1). Negative inputs wrap from the top, so
// ColorClamp(-0.25) == 0.75.
func ColorClamp(x float64) float64 {
	r := x - math.Floor(x)
	if r >= 1 {
		// x - floor(x) can round up to 1 for tiny negative x.
		return 0
	}
	return r
}

// LinspaceParam spaces n values across the configured range of p. For
// vectors and colors channel selects 0..2, or graph.AllChannels for one
// slice per channel; scalar kinds ignore channel. Color ranges are read as
// (mean, std) and expanded to mean +/- 2 std, then wrap clamped. Integer
// values are rounded.
func LinspaceParam(p *graph.Parameter, n int, channel int) ([][]float64, error) {
	if channel < graph.AllChannels || channel >= 3 {
		return nil, fmt.Errorf("%w: %d", graph.ErrChannelOutOfRange, channel)
	}

	switch p.Kind {
	case graph.KindScalar:
		return [][]float64{Linspace(p.Min[0], p.Max[0], n)}, nil
	case graph.KindInteger:
		vals := Linspace(p.Min[0], p.Max[0], n)
		for i, v := range vals {
			vals[i] = math.Round(v)
		}
		return [][]float64{vals}, nil
	case graph.KindVector3, graph.KindColor:
		var out [][]float64
		for _, ch := range channelList(channel) {
			lo, hi := p.Min[ch], p.Max[ch]
			if p.Kind == graph.KindColor {
				mean, std := lo, hi
				lo, hi = mean-ColorSpread*std, mean+ColorSpread*std
			}
			vals := Linspace(lo, hi, n)
			if p.Kind == graph.KindColor {
				for i, v := range vals {
					vals[i] = ColorClamp(v)
				}
			}
			out = append(out, vals)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", graph.ErrUnsupportedKind, p.Kind)
}

func channelList(channel int) []int {
	if channel == graph.AllChannels {
		return []int{0, 1, 2}
	}
	return []int{channel}
}
