// Package synth renders images as a pure function of a parameter snapshot.
// It stands in for a real renderer in tests and in the demo command.
package synth

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
)

// Default image size.
const (
	DefaultWidth  = 32
	DefaultHeight = 32
)

// Renderer writes a PNG whose pixels depend only on the inputs it reads
// from the snapshot. Inputs are "node/identifier" keys; every other value
// in the snapshot has no effect on the image.
type Renderer struct {
	Width  int
	Height int
	Inputs []string
	FS     fsutil.FileSystem
	// Gain scales how strongly inputs move the pattern. Zero means 1.
	Gain float64
}

// New returns a renderer reading inputs and writing through fsys.
func New(fsys fsutil.FileSystem, inputs ...string) *Renderer {
	return &Renderer{Width: DefaultWidth, Height: DefaultHeight, Inputs: inputs, FS: fsys}
}

// Render implements render.Renderer.
func (r *Renderer) Render(ctx context.Context, snap graph.Snapshot, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := r.Image(snap)
	if err != nil {
		return err
	}
	fsys := r.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	w, err := fsys.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	if err := png.Encode(w, img); err != nil {
		_ = w.Close()
		return fmt.Errorf("encode %s: %w", outputPath, err)
	}
	return w.Close()
}

// Image computes the picture for snap without writing it.
func (r *Renderer) Image(snap graph.Snapshot) (*image.NRGBA, error) {
	width, height := r.Width, r.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	gain := r.Gain
	if gain == 0 {
		gain = 1
	}

	layers := make([][3]float64, 0, len(r.Inputs))
	for _, key := range r.Inputs {
		v, err := lookup(snap, key)
		if err != nil {
			return nil, err
		}
		layers = append(layers, v)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		fy := float64(y) / float64(height)
		for x := 0; x < width; x++ {
			fx := float64(x) / float64(width)
			var sum [3]float64
			for k, v := range layers {
				basis := math.Cos(2 * math.Pi * (float64(k+1)*fx + float64(k+2)*fy))
				for c := 0; c < 3; c++ {
					sum[c] += gain * v[c] * basis
				}
			}
			img.SetNRGBA(x, y, color.NRGBA{
				R: level(sum[0]),
				G: level(sum[1]),
				B: level(sum[2]),
				A: 255,
			})
		}
	}
	return img, nil
}

func level(s float64) uint8 {
	return uint8(math.Round(255 * (0.5 + 0.5*math.Tanh(s))))
}

// lookup reads a "node/identifier" value as three channels. Scalars are
// repeated, vectors and colors use their first three elements. A missing
// key reads as zero.
func lookup(snap graph.Snapshot, key string) ([3]float64, error) {
	node, id, ok := strings.Cut(key, "/")
	if !ok {
		return [3]float64{}, fmt.Errorf("synth input %q: want node/identifier", key)
	}
	raw, ok := snap[node][id]
	if !ok {
		return [3]float64{}, nil
	}
	switch v := raw.(type) {
	case float64:
		return [3]float64{v, v, v}, nil
	case int:
		f := float64(v)
		return [3]float64{f, f, f}, nil
	case []any:
		var out [3]float64
		for i := 0; i < 3 && i < len(v); i++ {
			f, ok := v[i].(float64)
			if !ok {
				return [3]float64{}, fmt.Errorf("synth input %q: element %d is %T", key, i, v[i])
			}
			out[i] = f
		}
		return out, nil
	}
	return [3]float64{}, fmt.Errorf("synth input %q: unsupported value %T", key, raw)
}
