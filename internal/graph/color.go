package graph

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBToHSV converts an RGB triple in [0,1] to HSV with hue scaled to [0,1).
func RGBToHSV(rgb Vec3) Vec3 {
	h, s, v := colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hsv()
	return Vec3{h / 360, s, v}
}

// HSVToRGB converts HSV (hue in [0,1), wrapped if outside) to RGB.
func HSVToRGB(hsv Vec3) Vec3 {
	h := hsv[0] - math.Floor(hsv[0])
	c := colorful.Hsv(h*360, hsv[1], hsv[2])
	return Vec3{c.R, c.G, c.B}
}

// HSV returns the current color in HSV. Only meaningful for KindColor.
func (p *Parameter) HSV() Vec3 {
	return RGBToHSV(p.Current)
}

// SetHSV assigns the current color from HSV.
func (p *Parameter) SetHSV(hsv Vec3) {
	p.Current = HSVToRGB(hsv)
}
