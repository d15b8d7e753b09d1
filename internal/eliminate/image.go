package eliminate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/transform"

	"github.com/banshee-data/nodesweep/internal/fsutil"
)

// ErrImageSizeMismatch is returned when probe images of one batch differ in
// size.
var ErrImageSizeMismatch = errors.New("probe images differ in size")

// loadImage decodes the image at path and flattens it into one row of RGB
// intensities in [0, 1]. Alpha is dropped. Images larger than maxDim on
// either side are downscaled first, keeping the aspect ratio.
func loadImage(fsys fsutil.FileSystem, path string, maxDim int) ([]float64, image.Point, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("read probe %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode probe %s: %w", path, err)
	}
	img = downscale(img, maxDim)
	return flatten(img), img.Bounds().Size(), nil
}

func downscale(img image.Image, maxDim int) image.Image {
	size := img.Bounds().Size()
	if maxDim <= 0 || (size.X <= maxDim && size.Y <= maxDim) {
		return img
	}
	w, h := maxDim, maxDim
	if size.X > size.Y {
		h = max(1, size.Y*maxDim/size.X)
	} else {
		w = max(1, size.X*maxDim/size.Y)
	}
	return transform.Resize(img, w, h, transform.Linear)
}

func flatten(img image.Image) []float64 {
	b := img.Bounds()
	row := make([]float64, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			row = append(row,
				float64(c.R)/0xffff,
				float64(c.G)/0xffff,
				float64(c.B)/0xffff,
			)
		}
	}
	return row
}
