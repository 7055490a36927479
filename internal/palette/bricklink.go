// Package palette imports the BrickLink colour palette, seeds an anchor
// registry from it and keeps the per-colour metadata table.
package palette

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/fsutil"
)

// BrickLinkColour is one entry of bricklink_colours.json.
type BrickLinkColour struct {
	ColourID   int       `json:"colourID"`
	ColourName string    `json:"colourName"`
	Hex        string    `json:"hex"`
	RGB        []int     `json:"rgb,omitempty"`
	HSV        []float64 `json:"hsv,omitempty"`
	Type       string    `json:"type"`
}

// Centre is the colour's HSV position, taken from the hsv field or, when
// that is absent, derived from hex.
func (c BrickLinkColour) Centre() (colour.Vec, error) {
	if len(c.HSV) > 0 {
		return colour.FromSlice(c.HSV)
	}
	if c.Hex == "" {
		return colour.Vec{}, fmt.Errorf("colour %d has neither hsv nor hex", c.ColourID)
	}
	return colour.FromHex(c.Hex)
}

// ParseBrickLink decodes a palette document keyed by colour id.
func ParseBrickLink(data []byte) (map[int]BrickLinkColour, error) {
	var raw map[string]BrickLinkColour
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse palette: %w", err)
	}
	out := make(map[int]BrickLinkColour, len(raw))
	for key, c := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("palette key %q is not a colour id", key)
		}
		if c.ColourID == 0 {
			c.ColourID = id
		}
		out[id] = c
	}
	return out, nil
}

// LoadBrickLink reads and parses a palette file.
func LoadBrickLink(fsys fsutil.FileSystem, path string) (map[int]BrickLinkColour, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette %s: %w", path, err)
	}
	return ParseBrickLink(data)
}

// SeedOptions controls the anchors Seed builds.
type SeedOptions struct {
	Tolerance anchor.Tolerance
	MaxDrift  float64
	// PoleRadius locks anchors this close to black or white. Zero disables it.
	PoleRadius float64
}

// NearPole reports whether v sits within r of the black pole (V near 0) or
// the white pole (S near 0, V near 255).
func NearPole(v colour.Vec, r float64) bool {
	if r <= 0 {
		return false
	}
	black := v.V <= r
	white := v.S <= r && v.V >= colour.AxisMax-r
	return black || white
}

// Seed builds a registry from the palette in ascending colour id order
// with reset, anchor and drift centres at the palette position.
func Seed(colours map[int]BrickLinkColour, opts SeedOptions) (*anchor.Registry, error) {
	ids := make([]int, 0, len(colours))
	for id := range colours {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	anchors := make([]*anchor.Anchor, 0, len(ids))
	for _, id := range ids {
		c := colours[id]
		centre, err := c.Centre()
		if err != nil {
			return nil, fmt.Errorf("seed colour %d: %w", id, err)
		}
		a := anchor.New(id, c.ColourName, centre, opts.Tolerance)
		a.MaxDrift = opts.MaxDrift
		a.DriftLocked = NearPole(centre, opts.PoleRadius)
		anchors = append(anchors, a)
	}
	return anchor.NewRegistry(anchors...)
}
