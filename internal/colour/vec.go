// Package colour holds the HSV vector model shared by the anchor registry
// and the sample matcher.
//
// Every axis (hue, saturation, value) is expressed on a 0-255 scale so that
// the three components are directly comparable in distance computations.
package colour

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// AxisMax is the upper bound of every perceptual axis.
const AxisMax = 255.0

// MaxManhattan is the largest possible sum of absolute per-axis differences
// between two in-range colours.
const MaxManhattan = 3 * AxisMax

// Vec is a position or offset in HSV space. It is a plain value; copying a
// Vec never aliases another anchor's position.
type Vec struct {
	H, S, V float64
}

// Zero is the zero offset.
var Zero = Vec{}

func (v Vec) r3() r3.Vec { return r3.Vec{X: v.H, Y: v.S, Z: v.V} }

func fromR3(p r3.Vec) Vec { return Vec{H: p.X, S: p.Y, V: p.Z} }

// Add returns v+w.
func (v Vec) Add(w Vec) Vec { return fromR3(r3.Add(v.r3(), w.r3())) }

// Sub returns v-w.
func (v Vec) Sub(w Vec) Vec { return fromR3(r3.Sub(v.r3(), w.r3())) }

// Scale returns v*f.
func (v Vec) Scale(f float64) Vec { return fromR3(r3.Scale(f, v.r3())) }

// Norm returns the Euclidean length of v.
func (v Vec) Norm() float64 { return r3.Norm(v.r3()) }

// Slice returns the components as a new []float64 {H, S, V}.
func (v Vec) Slice() []float64 { return []float64{v.H, v.S, v.V} }

// IsZero reports whether all three components are exactly zero.
func (v Vec) IsZero() bool { return v == Zero }

// String formats v as [h s v].
func (v Vec) String() string {
	return fmt.Sprintf("[%.3f %.3f %.3f]", v.H, v.S, v.V)
}

// Distance is the Euclidean distance between a and b. It is the metric used
// for drift radii and anchor-to-anchor separation.
func Distance(a, b Vec) float64 {
	return a.Sub(b).Norm()
}

// Manhattan is the sum of absolute per-axis differences between a and b. It
// is the metric used for nearest-anchor matching.
func Manhattan(a, b Vec) float64 {
	return floats.Distance(a.Slice(), b.Slice(), 1)
}

// Confidence maps a Manhattan distance onto [0,1], decaying linearly from 1
// at zero distance to 0 at MaxManhattan and beyond.
func Confidence(manhattan float64) float64 {
	c := 1 - manhattan/MaxManhattan
	if c < 0 {
		return 0
	}
	return c
}

// FromSlice builds a Vec from exactly three components.
func FromSlice(xs []float64) (Vec, error) {
	if len(xs) != 3 {
		return Vec{}, fmt.Errorf("expected 3 components, got %d", len(xs))
	}
	return Vec{H: xs[0], S: xs[1], V: xs[2]}, nil
}

// MarshalJSON encodes v as a three element array.
func (v Vec) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Slice())
}

// UnmarshalJSON decodes a three element array into v.
func (v *Vec) UnmarshalJSON(data []byte) error {
	var xs []float64
	if err := json.Unmarshal(data, &xs); err != nil {
		return err
	}
	parsed, err := FromSlice(xs)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
