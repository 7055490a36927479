package matching

import (
	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/monitoring"
)

// Reason explains why an ingested sample did not move its anchor.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoMatch    Reason = "no-match"
	ReasonLocked     Reason = "locked"
	ReasonTolerance  Reason = "tolerance"
	ReasonIneligible Reason = "ineligible"
)

// Outcome is the result of ingesting one sample.
type Outcome struct {
	Result
	Applied bool       `json:"applied"`
	Reason  Reason     `json:"reason,omitempty"`
	Offset  colour.Vec `json:"offset"`
}

// Recorder receives every ingested sample and its outcome, for example to
// persist history outside the process.
type Recorder interface {
	RecordOutcome(s colour.Sample, o Outcome) error
}

// Options tunes the ingestion pipeline.
type Options struct {
	// ProbeFraction is the eligibility probe step toward the sample.
	ProbeFraction float64
	// Dampener is the fraction of the offset applied on a successful drift.
	Dampener float64
	// HistoryLimit caps each anchor's sample history; 0 keeps everything.
	HistoryLimit int
	// Recorder is optional.
	Recorder Recorder
}

// DefaultOptions returns probe 1/20, dampener 0.2, unbounded history.
func DefaultOptions() Options {
	return Options{
		ProbeFraction: anchor.DefaultProbeFraction,
		Dampener:      0.2,
	}
}

// Matcher runs samples through match, eligibility and drift against one
// registry. It holds no lock; callers serialise access.
type Matcher struct {
	reg  *anchor.Registry
	opts Options
}

// NewMatcher returns a Matcher for reg. Zero probe or dampener values are
// replaced by their defaults.
func NewMatcher(reg *anchor.Registry, opts Options) *Matcher {
	d := DefaultOptions()
	if opts.ProbeFraction <= 0 || opts.ProbeFraction > 1 {
		opts.ProbeFraction = d.ProbeFraction
	}
	if opts.Dampener <= 0 || opts.Dampener > 1 {
		opts.Dampener = d.Dampener
	}
	return &Matcher{reg: reg, opts: opts}
}

// Registry returns the registry the matcher works on.
func (m *Matcher) Registry() *anchor.Registry { return m.reg }

// Options returns the effective options.
func (m *Matcher) Options() Options { return m.opts }

// Match is Match(m.Registry(), s).
func (m *Matcher) Match(s colour.Sample) Result {
	return Match(m.reg, s)
}

// Ingest matches s and, when the winning anchor is unlocked, s is inside its
// tolerance box, the eligibility probe passes, and the full damped move still
// keeps separation and radius, drifts the anchor toward s.
func (m *Matcher) Ingest(s colour.Sample) Outcome {
	out := Outcome{Result: m.Match(s)}
	if !out.Matched() {
		out.Reason = ReasonNoMatch
		m.record(s, out)
		return out
	}

	a, _ := m.reg.Get(*out.ColorID)
	switch {
	case a.DriftLocked:
		out.Reason = ReasonLocked
	case !a.WithinTolerance(s):
		out.Reason = ReasonTolerance
	case !m.reg.EligibleForDrift(a, s, m.opts.ProbeFraction):
		out.Reason = ReasonIneligible
	case !m.reg.CanMoveTo(a, a.DampedTarget(s, m.opts.Dampener)):
		out.Reason = ReasonIneligible
	default:
		out.Offset, out.Applied = a.MoveToward(s, m.opts.Dampener)
	}

	a.TrimHistory(m.opts.HistoryLimit)
	m.record(s, out)
	return out
}

// IngestAll ingests samples in order.
func (m *Matcher) IngestAll(samples []colour.Sample) []Outcome {
	out := make([]Outcome, len(samples))
	for i, s := range samples {
		out[i] = m.Ingest(s)
	}
	return out
}

func (m *Matcher) record(s colour.Sample, o Outcome) {
	if m.opts.Recorder == nil {
		return
	}
	if err := m.opts.Recorder.RecordOutcome(s, o); err != nil {
		monitoring.Logf("matching: failed to record sample from %q: %v", s.Source, err)
	}
}
