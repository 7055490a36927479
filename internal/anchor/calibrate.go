package anchor

import (
	"fmt"

	"github.com/banshee-data/colour.registry/internal/colour"
)

// CalibrateParams bounds one relaxation run.
type CalibrateParams struct {
	// Threshold is the smallest per-pass move that is applied. A pass in
	// which no anchor moves further than this ends the run.
	Threshold float64
	// MaxPasses is the hard upper bound on passes.
	MaxPasses int
	// Dampener is the fraction of the separation deficit corrected per pass.
	Dampener float64
}

// DefaultCalibrateParams returns threshold 0.01, 10 passes, dampener 0.2.
func DefaultCalibrateParams() CalibrateParams {
	return CalibrateParams{Threshold: 0.01, MaxPasses: 10, Dampener: 0.2}
}

// Validate checks the parameter ranges.
func (p CalibrateParams) Validate() error {
	if p.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", p.Threshold)
	}
	if p.MaxPasses < 1 {
		return fmt.Errorf("max_passes must be at least 1, got %d", p.MaxPasses)
	}
	if p.Dampener <= 0 || p.Dampener > 1 {
		return fmt.Errorf("dampener must be in (0,1], got %v", p.Dampener)
	}
	return nil
}

// withDefaults replaces out-of-range fields with their defaults so that
// Calibrate itself never fails.
func (p CalibrateParams) withDefaults() CalibrateParams {
	d := DefaultCalibrateParams()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.MaxPasses < 1 {
		p.MaxPasses = d.MaxPasses
	}
	if p.Dampener <= 0 || p.Dampener > 1 {
		p.Dampener = d.Dampener
	}
	return p
}

// CalibrationReport summarises a Calibrate run.
type CalibrationReport struct {
	Passes    int  `json:"passes"`
	Converged bool `json:"converged"`
	// Moves counts, per anchor ID, the passes in which the anchor moved.
	Moves map[int]int `json:"moves"`
	// MaxShift is the largest single-pass move of any anchor.
	MaxShift float64 `json:"max_shift"`
	// Violations are the pairs still too close when the run ended.
	Violations []Violation `json:"violations"`
}

// Moved is the number of distinct anchors that moved during the run.
func (c CalibrationReport) Moved() int { return len(c.Moves) }

// Calibrate runs the repulsion relaxation. Each pass computes, for every
// unlocked anchor, the mean push away from each neighbour closer than
// Required, scaled by the separation deficit and the dampener. All pushes
// are computed from the positions at the start of the pass and applied
// together. Targets are clamped to each anchor's drift radius, moves no
// larger than Threshold are dropped, and moves that would bring a validly
// separated pair closer together are withdrawn.
//
// The run stops after a pass with no movement or after MaxPasses. It is
// best effort: remaining violations are listed in the report.
func (r *Registry) Calibrate(p CalibrateParams) CalibrationReport {
	p = p.withDefaults()
	report := CalibrationReport{Moves: make(map[int]int)}

	for pass := 0; pass < p.MaxPasses; pass++ {
		report.Passes++
		start := r.positions()
		targets, moving := r.relaxationTargets(start, p)
		r.withdrawRegressions(start, targets, moving)

		moved := 0
		for i, a := range r.anchors {
			if !moving[i] {
				continue
			}
			offset := targets[i].Sub(start[i])
			if shift := offset.Norm(); shift > report.MaxShift {
				report.MaxShift = shift
			}
			a.DriftCenter = targets[i]
			a.LastDriftVector = offset
			report.Moves[a.ID]++
			moved++
		}
		if moved == 0 {
			report.Converged = true
			break
		}
	}

	report.Violations = r.Violations()
	return report
}

func (r *Registry) positions() []colour.Vec {
	out := make([]colour.Vec, len(r.anchors))
	for i, a := range r.anchors {
		out[i] = a.DriftCenter
	}
	return out
}

// relaxationTargets computes the clamped target of every anchor and whether
// its move exceeds the threshold.
func (r *Registry) relaxationTargets(start []colour.Vec, p CalibrateParams) ([]colour.Vec, []bool) {
	targets := make([]colour.Vec, len(start))
	moving := make([]bool, len(start))
	for i, a := range r.anchors {
		targets[i] = start[i]
		if a.DriftLocked {
			continue
		}
		correction := r.correction(i, start, p.Dampener)
		if correction.IsZero() {
			continue
		}
		target := a.Clamp(start[i].Add(correction))
		if colour.Distance(target, start[i]) <= p.Threshold {
			continue
		}
		targets[i] = target
		moving[i] = true
	}
	return targets, moving
}

// correction is the mean damped push on anchor i from every neighbour that
// violates separation, or zero when none does.
func (r *Registry) correction(i int, start []colour.Vec, dampener float64) colour.Vec {
	a := r.anchors[i]
	var sum colour.Vec
	n := 0
	for j, b := range r.anchors {
		if j == i {
			continue
		}
		away := start[i].Sub(start[j])
		d := away.Norm()
		req := Required(a, b)
		if d >= req {
			continue
		}
		var unit colour.Vec
		if d == 0 {
			unit = tieBreak(i, j)
		} else {
			unit = away.Scale(1 / d)
		}
		sum = sum.Add(unit.Scale((req - d) * dampener))
		n++
	}
	if n == 0 {
		return colour.Zero
	}
	return sum.Scale(1 / float64(n))
}

// tieBreak picks the push direction for two coincident anchors: the one
// earlier in registry order goes down the hue axis, the later one up.
func tieBreak(i, j int) colour.Vec {
	if i < j {
		return colour.Vec{H: -1}
	}
	return colour.Vec{H: 1}
}

// withdrawRegressions cancels moves until no pair that started the pass at
// or beyond its required separation ends it closer than it started. Every
// round cancels at least one move, so the loop terminates.
func (r *Registry) withdrawRegressions(start, targets []colour.Vec, moving []bool) {
	for changed := true; changed; {
		changed = false
		for i := range r.anchors {
			for j := i + 1; j < len(r.anchors); j++ {
				if !moving[i] && !moving[j] {
					continue
				}
				before := colour.Distance(start[i], start[j])
				if before < Required(r.anchors[i], r.anchors[j]) {
					continue
				}
				if colour.Distance(targets[i], targets[j]) >= before {
					continue
				}
				for _, k := range []int{i, j} {
					if moving[k] {
						moving[k] = false
						targets[k] = start[k]
					}
				}
				changed = true
			}
		}
	}
}
