// Package matching assigns observed samples to their nearest anchor and
// applies the bounded per-sample drift update.
package matching

import (
	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
)

// Result is the identity assigned to one sample. ColorID is nil when the
// registry is empty.
type Result struct {
	ColorID    *int       `json:"color_id"`
	Confidence float64    `json:"confidence"`
	Drift      colour.Vec `json:"drift"`
}

// Matched reports whether the result names an anchor.
func (r Result) Matched() bool { return r.ColorID != nil }

// Nearest returns the anchor whose drift centre has the smallest Manhattan
// distance to s, together with that distance. Ties go to the anchor that
// comes first in registry order. It returns nil for an empty registry.
func Nearest(reg *anchor.Registry, s colour.Sample) (*anchor.Anchor, float64) {
	var best *anchor.Anchor
	bestDist := 0.0
	pos := s.Vec()
	for _, a := range reg.Anchors() {
		d := colour.Manhattan(pos, a.DriftCenter)
		if best == nil || d < bestDist {
			best, bestDist = a, d
		}
	}
	return best, bestDist
}

// Match assigns s to its nearest anchor and appends s to that anchor's
// history. An empty registry yields a null result with zero confidence.
func Match(reg *anchor.Registry, s colour.Sample) Result {
	a, dist := Nearest(reg, s)
	if a == nil {
		return Result{}
	}
	id := a.ID
	res := Result{
		ColorID:    &id,
		Confidence: colour.Confidence(dist),
		Drift:      s.Vec().Sub(a.DriftCenter),
	}
	a.RecordSample(s)
	return res
}
