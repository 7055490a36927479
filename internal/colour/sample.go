package colour

import (
	"fmt"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Sample is one observed colour measurement. Source is a diagnostic label
// (camera, fixture file) and never takes part in matching.
type Sample struct {
	H      float64 `json:"h"`
	S      float64 `json:"s"`
	V      float64 `json:"v"`
	Source string  `json:"source,omitempty"`
}

// Vec returns the sample position.
func (s Sample) Vec() Vec { return Vec{H: s.H, S: s.S, V: s.V} }

// SampleAt builds a sample at position v.
func SampleAt(v Vec, source string) Sample {
	return Sample{H: v.H, S: v.S, V: v.V, Source: source}
}

// FromHex converts a #rrggbb string to HSV on the 0-255 scale used
// throughout the registry: hue degrees are mapped 0-360 -> 0-255 and
// saturation/value 0-1 -> 0-255.
func FromHex(hex string) (Vec, error) {
	if len(hex) > 0 && hex[0] != '#' {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return Vec{}, fmt.Errorf("parse hex %q: %w", hex, err)
	}
	h, s, v := c.Hsv()
	return Vec{H: h / 360 * AxisMax, S: s * AxisMax, V: v * AxisMax}, nil
}

// FromRGB converts 0-255 RGB components to HSV on the registry scale.
func FromRGB(r, g, b float64) Vec {
	c := colorful.Color{R: r / 255, G: g / 255, B: b / 255}
	h, s, v := c.Hsv()
	return Vec{H: h / 360 * AxisMax, S: s * AxisMax, V: v * AxisMax}
}

// Colour converts v back to a displayable colour, clamping out-of-gamut values.
func (v Vec) Colour() color.RGBA {
	c := colorful.Hsv(v.H/AxisMax*360, v.S/AxisMax, v.V/AxisMax).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
