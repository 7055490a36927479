package anchor

import (
	"fmt"

	"github.com/banshee-data/colour.registry/internal/colour"
)

// DefaultProbeFraction is the step toward a sample used by EligibleForDrift.
const DefaultProbeFraction = 1.0 / 20

// Registry is the ordered set of anchors. Order is fixed at construction and
// is the tie-break for matching and for coincident anchors in Calibrate.
type Registry struct {
	anchors []*Anchor
	index   map[int]int
}

// NewRegistry builds a registry from anchors in the given order.
func NewRegistry(anchors ...*Anchor) (*Registry, error) {
	r := &Registry{
		anchors: make([]*Anchor, 0, len(anchors)),
		index:   make(map[int]int, len(anchors)),
	}
	for _, a := range anchors {
		if a == nil {
			return nil, fmt.Errorf("%w: nil anchor", ErrInvalidAnchor)
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[a.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateAnchor, a.ID)
		}
		r.index[a.ID] = len(r.anchors)
		r.anchors = append(r.anchors, a)
	}
	return r, nil
}

// Len is the number of anchors.
func (r *Registry) Len() int { return len(r.anchors) }

// Anchors returns the anchors in registry order. The slice is a copy; the
// anchors are shared.
func (r *Registry) Anchors() []*Anchor {
	out := make([]*Anchor, len(r.anchors))
	copy(out, r.anchors)
	return out
}

// Get looks an anchor up by ID.
func (r *Registry) Get(id int) (*Anchor, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.anchors[i], true
}

// Required is the minimum separation between a and b.
func Required(a, b *Anchor) float64 {
	return a.MaxDrift + b.MaxDrift
}

// CanMoveTo reports whether a could take target as its drift centre: a is
// unlocked, target keeps at least Required separation from every other
// anchor's current centre, and target lies within a's drift radius.
func (r *Registry) CanMoveTo(a *Anchor, target colour.Vec) bool {
	if a.DriftLocked {
		return false
	}
	for _, other := range r.anchors {
		if other.ID == a.ID {
			continue
		}
		if colour.Distance(target, other.DriftCenter) < Required(a, other) {
			return false
		}
	}
	return colour.Distance(target, a.AnchorCenter) <= a.MaxDrift
}

// EligibleForDrift probes a small step (probe, usually DefaultProbeFraction)
// from a's drift centre toward s and checks it with CanMoveTo. Only the
// current positions of the other anchors are considered, so two updates
// applied back to back may still jointly close a gap.
func (r *Registry) EligibleForDrift(a *Anchor, s colour.Sample, probe float64) bool {
	if a.DriftLocked {
		return false
	}
	tentative := a.DriftCenter.Add(s.Vec().Sub(a.DriftCenter).Scale(probe))
	return r.CanMoveTo(a, tentative)
}

// Violation is a pair of anchors closer than their required separation.
type Violation struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	Required float64 `json:"required"`
}

// Violations lists every pair, in registry order, whose drift centres are
// closer than Required.
func (r *Registry) Violations() []Violation {
	var out []Violation
	for i, a := range r.anchors {
		for _, b := range r.anchors[i+1:] {
			d := colour.Distance(a.DriftCenter, b.DriftCenter)
			if req := Required(a, b); d < req {
				out = append(out, Violation{A: a.ID, B: b.ID, Distance: d, Required: req})
			}
		}
	}
	return out
}
