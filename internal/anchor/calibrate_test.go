package anchor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/colour.registry/internal/colour"
)

func mustRegistry(t *testing.T, anchors ...*Anchor) *Registry {
	t.Helper()
	reg, err := NewRegistry(anchors...)
	require.NoError(t, err)
	return reg
}

func anchorAt(id int, h, s, v float64) *Anchor {
	return New(id, "", colour.Vec{H: h, S: s, V: v}, Tolerance{Hue: 10, Sat: 10, Val: 10})
}

func TestCalibrate_PushesViolatingPairApart(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 108, 100, 100)
	reg := mustRegistry(t, a, b)

	before := colour.Distance(a.DriftCenter, b.DriftCenter)
	report := reg.Calibrate(CalibrateParams{Threshold: 0.01, MaxPasses: 1, Dampener: 0.2})

	after := colour.Distance(a.DriftCenter, b.DriftCenter)
	assert.Greater(t, after, before)
	assert.InDelta(t, 8.8, after, 1e-9)
	assert.InDelta(t, 99.6, a.DriftCenter.H, 1e-9)
	assert.InDelta(t, 108.4, b.DriftCenter.H, 1e-9)
	assert.InDelta(t, -0.4, a.LastDriftVector.H, 1e-9)
	assert.LessOrEqual(t, a.DriftMagnitude(), a.MaxDrift)
	assert.LessOrEqual(t, b.DriftMagnitude(), b.MaxDrift)
	assert.Equal(t, 1, report.Passes)
	assert.False(t, report.Converged)
	assert.Equal(t, 2, report.Moved())
}

func TestCalibrate_SeparatedPairDoesNotMove(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 112, 100, 100)
	reg := mustRegistry(t, a, b)

	report := reg.Calibrate(DefaultCalibrateParams())

	assert.True(t, report.Converged)
	assert.Equal(t, 1, report.Passes)
	assert.Zero(t, report.Moved())
	assert.Equal(t, colour.Vec{H: 100, S: 100, V: 100}, a.DriftCenter)
	assert.Equal(t, colour.Vec{H: 112, S: 100, V: 100}, b.DriftCenter)
	assert.Empty(t, report.Violations)
}

func TestCalibrate_ConvergesAndIsIdempotent(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 108, 100, 100)
	reg := mustRegistry(t, a, b)
	params := DefaultCalibrateParams()

	first := reg.Calibrate(params)
	require.True(t, first.Converged)
	assert.LessOrEqual(t, first.Passes, params.MaxPasses)

	posA, posB := a.DriftCenter, b.DriftCenter
	lastA := a.LastDriftVector

	second := reg.Calibrate(params)
	assert.True(t, second.Converged)
	assert.Equal(t, 1, second.Passes)
	assert.Zero(t, second.Moved())
	assert.Zero(t, second.MaxShift)
	assert.Equal(t, posA, a.DriftCenter)
	assert.Equal(t, posB, b.DriftCenter)
	assert.Equal(t, lastA, a.LastDriftVector)
}

func TestCalibrate_RespectsMaxPasses(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 108, 100, 100)
	reg := mustRegistry(t, a, b)

	report := reg.Calibrate(CalibrateParams{Threshold: 1e-12, MaxPasses: 2, Dampener: 0.2})

	assert.Equal(t, 2, report.Passes)
	assert.False(t, report.Converged)
	assert.Len(t, report.Violations, 1)
}

func TestCalibrate_CoincidentAnchorsSplitDeterministically(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 100, 100, 100)
	reg := mustRegistry(t, a, b)

	reg.Calibrate(CalibrateParams{Threshold: 0.01, MaxPasses: 1, Dampener: 0.2})

	assert.InDelta(t, 98, a.DriftCenter.H, 1e-9)
	assert.InDelta(t, 102, b.DriftCenter.H, 1e-9)
	assert.Equal(t, 100.0, a.DriftCenter.S)
	assert.Equal(t, 100.0, b.DriftCenter.V)
}

func TestCalibrate_ClampsToDriftRadius(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 100.5, 100, 100)
	a.MaxDrift, b.MaxDrift = 1, 1
	reg := mustRegistry(t, a, b)

	reg.Calibrate(CalibrateParams{Threshold: 0.01, MaxPasses: 1, Dampener: 1})

	assert.InDelta(t, 1, a.DriftMagnitude(), 1e-9)
	assert.InDelta(t, 1, b.DriftMagnitude(), 1e-9)
	assert.InDelta(t, 99, a.DriftCenter.H, 1e-9)
	assert.InDelta(t, 101.5, b.DriftCenter.H, 1e-9)
}

func TestCalibrate_LockedAnchorHoldsButStillRepels(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	a.DriftLocked = true
	b := anchorAt(2, 104, 100, 100)
	reg := mustRegistry(t, a, b)

	reg.Calibrate(CalibrateParams{Threshold: 0.01, MaxPasses: 1, Dampener: 0.2})

	assert.Equal(t, colour.Vec{H: 100, S: 100, V: 100}, a.DriftCenter)
	assert.True(t, a.LastDriftVector.IsZero())
	assert.InDelta(t, 105.2, b.DriftCenter.H, 1e-9)
}

func TestCalibrate_WithdrawsMoveThatClosesValidGap(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 104, 100, 100)
	c := anchorAt(3, 88, 100, 100)
	reg := mustRegistry(t, a, b, c)

	acBefore := colour.Distance(a.DriftCenter, c.DriftCenter)
	reg.Calibrate(CalibrateParams{Threshold: 0.01, MaxPasses: 1, Dampener: 0.2})

	assert.Equal(t, colour.Vec{H: 100, S: 100, V: 100}, a.DriftCenter, "a would have closed on c")
	assert.InDelta(t, acBefore, colour.Distance(a.DriftCenter, c.DriftCenter), 1e-12)
	assert.InDelta(t, 105.2, b.DriftCenter.H, 1e-9)
}

func TestCalibrate_InvalidParamsFallBackToDefaults(t *testing.T) {
	a := anchorAt(1, 100, 100, 100)
	b := anchorAt(2, 108, 100, 100)
	reg := mustRegistry(t, a, b)

	report := reg.Calibrate(CalibrateParams{})

	assert.LessOrEqual(t, report.Passes, DefaultCalibrateParams().MaxPasses)
	assert.Greater(t, colour.Distance(a.DriftCenter, b.DriftCenter), 8.0)
}

func TestCalibrate_EmptyRegistry(t *testing.T) {
	reg := mustRegistry(t)
	report := reg.Calibrate(DefaultCalibrateParams())
	assert.True(t, report.Converged)
	assert.Empty(t, report.Violations)
}

// TestCalibrate_PassInvariants checks, over random crowded registries, that a
// single pass never shrinks a valid gap and never leaves an anchor outside
// its drift radius.
func TestCalibrate_PassInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := CalibrateParams{Threshold: 0.001, MaxPasses: 1, Dampener: 0.5}

	for trial := 0; trial < 50; trial++ {
		anchors := make([]*Anchor, 12)
		for i := range anchors {
			anchors[i] = anchorAt(i+1, rng.Float64()*30, rng.Float64()*30, rng.Float64()*30)
			anchors[i].MaxDrift = 2 + rng.Float64()*4
			anchors[i].DriftLocked = rng.Intn(6) == 0
		}
		reg := mustRegistry(t, anchors...)

		for pass := 0; pass < 5; pass++ {
			before := reg.positions()
			reg.Calibrate(params)

			for i, a := range anchors {
				require.LessOrEqual(t, a.DriftMagnitude(), a.MaxDrift+1e-9, "trial %d anchor %d outside radius", trial, a.ID)
				if a.DriftLocked {
					require.Equal(t, before[i], a.DriftCenter)
				}
				for j := i + 1; j < len(anchors); j++ {
					b := anchors[j]
					was := colour.Distance(before[i], before[j])
					if was < Required(a, b) {
						continue
					}
					now := colour.Distance(a.DriftCenter, b.DriftCenter)
					require.GreaterOrEqual(t, now, was, "trial %d pair %d/%d closed a valid gap", trial, a.ID, b.ID)
				}
			}
		}
	}
}
