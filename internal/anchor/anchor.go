// Package anchor owns the colour anchor registry and its calibration engine.
//
// An Anchor is a fixed colour identity with a movable working centre
// (DriftCenter). Two geometries apply: a per-axis tolerance box decides
// which samples may influence an anchor, and a Euclidean radius (MaxDrift)
// bounds both how far the working centre may wander from AnchorCenter and
// how close two anchors may sit to each other.
//
// Nothing in this package performs I/O or locking. A Registry assumes one
// caller at a time.
package anchor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/colour.registry/internal/colour"
)

// DefaultMaxDrift is the drift radius applied when a record omits one.
const DefaultMaxDrift = 5.0

var (
	// ErrDuplicateAnchor is returned when two anchors share an ID.
	ErrDuplicateAnchor = errors.New("duplicate anchor id")
	// ErrInvalidAnchor is returned for negative radii or tolerances.
	ErrInvalidAnchor = errors.New("invalid anchor")
)

// Tolerance is the per-axis half-width of the box within which a sample may
// influence an anchor.
type Tolerance struct {
	Hue float64 `json:"hue"`
	Sat float64 `json:"sat"`
	Val float64 `json:"val"`
}

// Contains reports whether every component of offset lies within the box.
func (t Tolerance) Contains(offset colour.Vec) bool {
	return abs(offset.H) <= t.Hue && abs(offset.S) <= t.Sat && abs(offset.V) <= t.Val
}

// Anchor is one known colour in the registry.
type Anchor struct {
	ID   int
	Name string

	// ResetCenter is the factory calibration origin.
	ResetCenter colour.Vec
	// AnchorCenter is the origin of the MaxDrift radius.
	AnchorCenter colour.Vec
	// DriftCenter is the current working position.
	DriftCenter colour.Vec

	Tolerance   Tolerance
	MaxDrift    float64
	DriftLocked bool

	// EdgeRatio is carried through load/save untouched.
	EdgeRatio float64

	// ConfidenceAvg is nil until there is data to summarise.
	ConfidenceAvg   *float64
	LastDriftVector colour.Vec

	samples []colour.Sample
}

// New returns an unlocked anchor whose anchor and drift centres start at
// reset, with the default drift radius.
func New(id int, name string, reset colour.Vec, tol Tolerance) *Anchor {
	return &Anchor{
		ID:           id,
		Name:         name,
		ResetCenter:  reset,
		AnchorCenter: reset,
		DriftCenter:  reset,
		Tolerance:    tol,
		MaxDrift:     DefaultMaxDrift,
	}
}

// Validate checks the scalar parameters.
func (a *Anchor) Validate() error {
	if a.MaxDrift < 0 {
		return fmt.Errorf("%w: anchor %d max_drift %v is negative", ErrInvalidAnchor, a.ID, a.MaxDrift)
	}
	if a.Tolerance.Hue < 0 || a.Tolerance.Sat < 0 || a.Tolerance.Val < 0 {
		return fmt.Errorf("%w: anchor %d tolerance %+v has a negative axis", ErrInvalidAnchor, a.ID, a.Tolerance)
	}
	return nil
}

// WithinTolerance is the box test: every axis of the sample must lie within
// the matching tolerance of DriftCenter.
func (a *Anchor) WithinTolerance(s colour.Sample) bool {
	return a.Tolerance.Contains(s.Vec().Sub(a.DriftCenter))
}

// DriftMagnitude is the distance of the working centre from AnchorCenter.
func (a *Anchor) DriftMagnitude() float64 {
	return colour.Distance(a.DriftCenter, a.AnchorCenter)
}

// Samples returns a copy of the sample history.
func (a *Anchor) Samples() []colour.Sample {
	out := make([]colour.Sample, len(a.samples))
	copy(out, a.samples)
	return out
}

// SampleCount is the length of the sample history.
func (a *Anchor) SampleCount() int { return len(a.samples) }

// Clamp projects target onto the anchor's drift ball around AnchorCenter.
func (a *Anchor) Clamp(target colour.Vec) colour.Vec {
	offset := target.Sub(a.AnchorCenter)
	d := offset.Norm()
	if d <= a.MaxDrift {
		return target
	}
	return a.AnchorCenter.Add(offset.Scale(a.MaxDrift / d))
}

// DampedTarget is where ApplySample would put DriftCenter for s.
func (a *Anchor) DampedTarget(s colour.Sample, dampener float64) colour.Vec {
	step := s.Vec().Sub(a.DriftCenter).Scale(dampener)
	return a.Clamp(a.DriftCenter.Add(step))
}

// RecordSample appends s to the history and refreshes ConfidenceAvg without
// moving the anchor.
func (a *Anchor) RecordSample(s colour.Sample) {
	a.samples = append(a.samples, s)
	a.updateConfidence()
}

// MoveToward shifts DriftCenter a dampened step toward s, clamped to the
// drift radius. It does not touch the sample history. A locked anchor is left
// unchanged and false is returned.
func (a *Anchor) MoveToward(s colour.Sample, dampener float64) (colour.Vec, bool) {
	if a.DriftLocked {
		return colour.Zero, false
	}
	target := a.DampedTarget(s, dampener)
	offset := target.Sub(a.DriftCenter)
	a.DriftCenter = target
	a.LastDriftVector = offset
	a.updateConfidence()
	return offset, true
}

// ApplySample moves the anchor toward s and records s in the history.
// Callers are expected to have checked eligibility or tolerance first.
func (a *Anchor) ApplySample(s colour.Sample, dampener float64) bool {
	_, moved := a.MoveToward(s, dampener)
	a.RecordSample(s)
	return moved
}

// TrimHistory keeps only the newest keep samples. keep <= 0 is a no-op.
func (a *Anchor) TrimHistory(keep int) {
	if keep <= 0 || len(a.samples) <= keep {
		return
	}
	trimmed := make([]colour.Sample, keep)
	copy(trimmed, a.samples[len(a.samples)-keep:])
	a.samples = trimmed
	a.updateConfidence()
}

// Reset returns an unlocked anchor to its reset centre.
func (a *Anchor) Reset() {
	if a.DriftLocked {
		return
	}
	a.DriftCenter = a.Clamp(a.ResetCenter)
	a.LastDriftVector = colour.Zero
	a.updateConfidence()
}

// updateConfidence recomputes ConfidenceAvg as 1/(1+mean distance of the
// history to DriftCenter). With an empty history the current value, nil or
// persisted, is left alone.
func (a *Anchor) updateConfidence() {
	if len(a.samples) == 0 {
		return
	}
	dists := make([]float64, len(a.samples))
	for i, s := range a.samples {
		dists[i] = colour.Distance(s.Vec(), a.DriftCenter)
	}
	c := 1 / (1 + stat.Mean(dists, nil))
	a.ConfidenceAvg = &c
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
