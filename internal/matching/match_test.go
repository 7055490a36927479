package matching

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/monitoring"
)

func newAnchor(id int, h, s, v float64) *anchor.Anchor {
	return anchor.New(id, "", colour.Vec{H: h, S: s, V: v}, anchor.Tolerance{Hue: 10, Sat: 10, Val: 10})
}

func newRegistry(t *testing.T, anchors ...*anchor.Anchor) *anchor.Registry {
	t.Helper()
	reg, err := anchor.NewRegistry(anchors...)
	require.NoError(t, err)
	return reg
}

func TestMatch_ExactDriftCentre(t *testing.T) {
	red := anchor.New(5, "Red", colour.Vec{H: 1.2, S: 253.5, V: 127.1}, anchor.Tolerance{Hue: 5, Sat: 5, Val: 5})
	reg := newRegistry(t, newAnchor(1, 0, 0, 0), red, newAnchor(11, 0, 0, 255))

	res := Match(reg, colour.Sample{H: 1.2, S: 253.5, V: 127.1, Source: "cam_A"})

	require.True(t, res.Matched())
	assert.Equal(t, 5, *res.ColorID)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, colour.Vec{}, res.Drift)
	assert.Equal(t, 1, red.SampleCount())
}

func TestMatch_EmptyRegistry(t *testing.T) {
	res := Match(newRegistry(t), colour.Sample{H: 10, S: 10, V: 10})

	assert.False(t, res.Matched())
	assert.Nil(t, res.ColorID)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.Drift.IsZero())
}

func TestMatch_UsesManhattanOnDriftCentre(t *testing.T) {
	a := newAnchor(1, 100, 100, 100)
	b := newAnchor(2, 130, 100, 100)
	b.DriftCenter = colour.Vec{H: 110, S: 100, V: 100}
	reg := newRegistry(t, a, b)

	res := Match(reg, colour.Sample{H: 108, S: 100, V: 100})
	require.True(t, res.Matched())
	assert.Equal(t, 2, *res.ColorID)
	assert.Equal(t, colour.Vec{H: -2}, res.Drift)
	assert.InDelta(t, 1-2.0/765, res.Confidence, 1e-12)
}

func TestMatch_TieGoesToFirstAnchor(t *testing.T) {
	reg := newRegistry(t, newAnchor(7, 90, 100, 100), newAnchor(3, 110, 100, 100))

	res := Match(reg, colour.Sample{H: 100, S: 100, V: 100})
	require.True(t, res.Matched())
	assert.Equal(t, 7, *res.ColorID)
}

func TestMatch_ConfidenceFallsToZero(t *testing.T) {
	reg := newRegistry(t, newAnchor(1, 0, 0, 0))

	prev := 2.0
	for _, m := range []float64{0, 1, 100, 400, 764, 765} {
		per := m / 3
		res := Match(reg, colour.Sample{H: per, S: per, V: per})
		assert.LessOrEqual(t, res.Confidence, prev)
		prev = res.Confidence
	}
	assert.Zero(t, prev)

	res := Match(reg, colour.Sample{H: 300, S: 300, V: 300})
	assert.Zero(t, res.Confidence)
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(a, far *anchor.Anchor)
		sample  colour.Sample
		applied bool
		reason  Reason
	}{
		{
			name:    "drifts toward in-tolerance sample",
			sample:  colour.Sample{H: 104, S: 100, V: 100},
			applied: true,
		},
		{
			name:   "locked anchor",
			setup:  func(a, _ *anchor.Anchor) { a.DriftLocked = true },
			sample: colour.Sample{H: 104, S: 100, V: 100},
			reason: ReasonLocked,
		},
		{
			name:   "outside tolerance box",
			sample: colour.Sample{H: 100, S: 100, V: 115},
			reason: ReasonTolerance,
		},
		{
			name: "probe crowds neighbour",
			setup: func(_, far *anchor.Anchor) {
				far.DriftCenter = colour.Vec{H: 110.1, S: 100, V: 100}
				far.AnchorCenter = far.DriftCenter
			},
			sample: colour.Sample{H: 104, S: 100, V: 100},
			reason: ReasonIneligible,
		},
		{
			name: "probe passes but full step crowds neighbour",
			setup: func(_, far *anchor.Anchor) {
				far.DriftCenter = colour.Vec{H: 110.5, S: 100, V: 100}
				far.AnchorCenter = far.DriftCenter
			},
			sample: colour.Sample{H: 104, S: 100, V: 100},
			reason: ReasonIneligible,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnchor(1, 100, 100, 100)
			far := newAnchor(2, 200, 100, 100)
			if tt.setup != nil {
				tt.setup(a, far)
			}
			reg := newRegistry(t, a, far)
			m := NewMatcher(reg, DefaultOptions())
			before := a.DriftCenter

			out := m.Ingest(tt.sample)

			require.True(t, out.Matched())
			assert.Equal(t, 1, *out.ColorID)
			assert.Equal(t, tt.applied, out.Applied)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, 1, a.SampleCount())
			if tt.applied {
				assert.InDelta(t, 100.8, a.DriftCenter.H, 1e-9)
				assert.InDelta(t, 0.8, out.Offset.H, 1e-9)
				assert.Equal(t, out.Offset, a.LastDriftVector)
			} else {
				assert.Equal(t, before, a.DriftCenter)
			}
			assert.Empty(t, reg.Violations())
		})
	}
}

func TestIngest_EmptyRegistry(t *testing.T) {
	m := NewMatcher(newRegistry(t), Options{})
	out := m.Ingest(colour.Sample{H: 1, S: 2, V: 3})
	assert.False(t, out.Matched())
	assert.Equal(t, ReasonNoMatch, out.Reason)
}

func TestIngest_TrimsHistory(t *testing.T) {
	a := newAnchor(1, 100, 100, 100)
	m := NewMatcher(newRegistry(t, a), Options{HistoryLimit: 3})

	for i := 0; i < 10; i++ {
		m.Ingest(colour.Sample{H: 101, S: 100, V: 100})
	}
	assert.Equal(t, 3, a.SampleCount())
}

func TestIngestAll_StaysWithinRadius(t *testing.T) {
	a := newAnchor(1, 100, 100, 100)
	m := NewMatcher(newRegistry(t, a), DefaultOptions())

	samples := make([]colour.Sample, 50)
	for i := range samples {
		samples[i] = colour.Sample{H: 108, S: 100, V: 100}
	}
	outs := m.IngestAll(samples)

	require.Len(t, outs, 50)
	assert.True(t, outs[0].Applied)
	assert.LessOrEqual(t, a.DriftMagnitude(), a.MaxDrift+1e-9)
}

type fakeRecorder struct {
	samples  []colour.Sample
	outcomes []Outcome
	err      error
}

func (f *fakeRecorder) RecordOutcome(s colour.Sample, o Outcome) error {
	f.samples = append(f.samples, s)
	f.outcomes = append(f.outcomes, o)
	return f.err
}

func TestIngest_Recorder(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	rec := &fakeRecorder{}
	m := NewMatcher(newRegistry(t, newAnchor(1, 100, 100, 100)), Options{Recorder: rec})

	m.Ingest(colour.Sample{H: 101, S: 100, V: 100, Source: "cam_A"})
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, "cam_A", rec.samples[0].Source)
	assert.True(t, rec.outcomes[0].Applied)
	assert.Zero(t, logged)

	rec.err = errors.New("disk full")
	out := m.Ingest(colour.Sample{H: 101, S: 100, V: 100})
	assert.True(t, out.Matched(), "recorder failure is not fatal")
	assert.Equal(t, 1, logged)
}

func TestNewMatcher_Defaults(t *testing.T) {
	m := NewMatcher(newRegistry(t), Options{ProbeFraction: 2, Dampener: -1})
	assert.Equal(t, anchor.DefaultProbeFraction, m.Options().ProbeFraction)
	assert.Equal(t, 0.2, m.Options().Dampener)
}
