package registrystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
)

// DefaultConfidence is applied when a record has no confidence_avg key.
const DefaultConfidence = 1.0

// record is the persisted shape of one anchor.
type record struct {
	ColorID         int              `json:"color_id"`
	ColorName       string           `json:"color_name"`
	ResetCenter     colour.Vec       `json:"reset_center"`
	AnchorCenter    colour.Vec       `json:"anchor_center"`
	DriftCenter     colour.Vec       `json:"drift_center"`
	MaxDrift        float64          `json:"max_drift"`
	Tolerance       anchor.Tolerance `json:"tolerance"`
	EdgeRatio       float64          `json:"edge_ratio"`
	ConfidenceAvg   *float64         `json:"confidence_avg"`
	LastDriftVector colour.Vec       `json:"last_drift_vector"`
	DriftLocked     bool             `json:"drift_locked"`
}

// rawRecord mirrors record with every field optional so that absent keys
// can be told apart from zero values.
type rawRecord struct {
	ColorID         *int            `json:"color_id"`
	ColorName       string          `json:"color_name"`
	ResetCenter     []float64       `json:"reset_center"`
	AnchorCenter    []float64       `json:"anchor_center"`
	DriftCenter     []float64       `json:"drift_center"`
	MaxDrift        *float64        `json:"max_drift"`
	Tolerance       *rawTolerance   `json:"tolerance"`
	EdgeRatio       *float64        `json:"edge_ratio"`
	ConfidenceAvg   json.RawMessage `json:"confidence_avg"`
	LastDriftVector []float64       `json:"last_drift_vector"`
	DriftLocked     *bool           `json:"drift_locked"`
}

type rawTolerance struct {
	Hue *float64 `json:"hue"`
	Sat *float64 `json:"sat"`
	Val *float64 `json:"val"`
}

func (t *rawTolerance) resolve() (anchor.Tolerance, error) {
	if t == nil {
		return anchor.Tolerance{}, errors.New("tolerance is required")
	}
	var missing []string
	if t.Hue == nil {
		missing = append(missing, "hue")
	}
	if t.Sat == nil {
		missing = append(missing, "sat")
	}
	if t.Val == nil {
		missing = append(missing, "val")
	}
	if len(missing) > 0 {
		return anchor.Tolerance{}, fmt.Errorf("tolerance missing %v", missing)
	}
	return anchor.Tolerance{Hue: *t.Hue, Sat: *t.Sat, Val: *t.Val}, nil
}

func vecField(name string, xs []float64, fallback *colour.Vec) (colour.Vec, error) {
	if xs == nil {
		if fallback == nil {
			return colour.Vec{}, fmt.Errorf("%s is required", name)
		}
		return *fallback, nil
	}
	v, err := colour.FromSlice(xs)
	if err != nil {
		return colour.Vec{}, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (r rawRecord) toAnchor() (*anchor.Anchor, error) {
	if r.ColorID == nil {
		return nil, errors.New("color_id is required")
	}
	reset, err := vecField("reset_center", r.ResetCenter, nil)
	if err != nil {
		return nil, err
	}
	anchorCenter, err := vecField("anchor_center", r.AnchorCenter, &reset)
	if err != nil {
		return nil, err
	}
	drift, err := vecField("drift_center", r.DriftCenter, &reset)
	if err != nil {
		return nil, err
	}
	last, err := vecField("last_drift_vector", r.LastDriftVector, &colour.Zero)
	if err != nil {
		return nil, err
	}
	tol, err := r.Tolerance.resolve()
	if err != nil {
		return nil, err
	}

	a := &anchor.Anchor{
		ID:              *r.ColorID,
		Name:            r.ColorName,
		ResetCenter:     reset,
		AnchorCenter:    anchorCenter,
		DriftCenter:     drift,
		Tolerance:       tol,
		MaxDrift:        anchor.DefaultMaxDrift,
		LastDriftVector: last,
	}
	if r.MaxDrift != nil {
		a.MaxDrift = *r.MaxDrift
	}
	if r.EdgeRatio != nil {
		a.EdgeRatio = *r.EdgeRatio
	}
	if r.DriftLocked != nil {
		a.DriftLocked = *r.DriftLocked
	}
	if a.ConfidenceAvg, err = parseConfidence(r.ConfidenceAvg); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// parseConfidence maps an absent key to DefaultConfidence and an explicit
// null to "no data".
func parseConfidence(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 {
		c := DefaultConfidence
		return &c, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var c float64
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("confidence_avg: %w", err)
	}
	return &c, nil
}

func fromAnchor(a *anchor.Anchor) record {
	return record{
		ColorID:         a.ID,
		ColorName:       a.Name,
		ResetCenter:     a.ResetCenter,
		AnchorCenter:    a.AnchorCenter,
		DriftCenter:     a.DriftCenter,
		MaxDrift:        a.MaxDrift,
		Tolerance:       a.Tolerance,
		EdgeRatio:       a.EdgeRatio,
		ConfidenceAvg:   a.ConfidenceAvg,
		LastDriftVector: a.LastDriftVector,
		DriftLocked:     a.DriftLocked,
	}
}
