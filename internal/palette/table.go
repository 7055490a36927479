package palette

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/banshee-data/colour.registry/internal/fsutil"
)

// SourceBrickLink is the Table source name for palette imports.
const SourceBrickLink = "BrickLink"

// Entry is the metadata one source holds for a colour.
type Entry struct {
	Name string    `json:"name,omitempty"`
	Hex  string    `json:"hex,omitempty"`
	Type string    `json:"type,omitempty"`
	RGB  []int     `json:"rgb,omitempty"`
	HSV  []float64 `json:"hsv,omitempty"`
}

// Table maps colour id (as a string key) to source name to Entry.
type Table map[string]map[string]Entry

// LoadTable reads a metadata table. A missing file is an empty table.
func LoadTable(fsys fsutil.FileSystem, path string) (Table, error) {
	if !fsys.Exists(path) {
		return Table{}, nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read colour table %s: %w", path, err)
	}
	t := Table{}
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse colour table %s: %w", path, err)
	}
	return t, nil
}

// Save writes the table as indented JSON.
func (t Table) Save(fsys fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode colour table: %w", err)
	}
	return fsutil.WriteFileAtomic(fsys, path, data, 0o644)
}

// Update merges entries into the colour's record, replacing sources that
// already exist, and returns the merged record.
func (t Table) Update(colorID int, entries map[string]Entry) map[string]Entry {
	key := strconv.Itoa(colorID)
	rec, ok := t[key]
	if !ok {
		rec = make(map[string]Entry, len(entries))
		t[key] = rec
	}
	for source, e := range entries {
		rec[source] = e
	}
	return rec
}

// Merge folds every record of other into t.
func (t Table) Merge(other Table) {
	for key, entries := range other {
		rec, ok := t[key]
		if !ok {
			rec = make(map[string]Entry, len(entries))
			t[key] = rec
		}
		for source, e := range entries {
			rec[source] = e
		}
	}
}

// Get returns the colour's record, empty when unknown.
func (t Table) Get(colorID int) map[string]Entry {
	rec, ok := t[strconv.Itoa(colorID)]
	if !ok {
		return map[string]Entry{}
	}
	return rec
}

// TableFromBrickLink records every palette colour under SourceBrickLink.
func TableFromBrickLink(colours map[int]BrickLinkColour) Table {
	t := Table{}
	for id, c := range colours {
		t.Update(id, map[string]Entry{SourceBrickLink: {
			Name: c.ColourName,
			Hex:  c.Hex,
			Type: c.Type,
			RGB:  c.RGB,
			HSV:  c.HSV,
		}})
	}
	return t
}
