package colour

import "fmt"

// Plane is a pair of HSV axes used to project anchors for plotting.
type Plane string

const (
	PlaneHS Plane = "hs"
	PlaneHV Plane = "hv"
	PlaneSV Plane = "sv"
)

// ParsePlane accepts "hs", "hv" or "sv". Empty means PlaneSV.
func ParsePlane(s string) (Plane, error) {
	switch p := Plane(s); p {
	case "":
		return PlaneSV, nil
	case PlaneHS, PlaneHV, PlaneSV:
		return p, nil
	default:
		return "", fmt.Errorf("unknown plane %q (want hs, hv or sv)", s)
	}
}

// Project returns v's coordinates on the plane.
func (p Plane) Project(v Vec) (x, y float64) {
	switch p {
	case PlaneHS:
		return v.H, v.S
	case PlaneHV:
		return v.H, v.V
	default:
		return v.S, v.V
	}
}

// Axes names the x and y axes.
func (p Plane) Axes() (x, y string) {
	switch p {
	case PlaneHS:
		return "Hue", "Saturation"
	case PlaneHV:
		return "Hue", "Value"
	default:
		return "Saturation", "Value"
	}
}
