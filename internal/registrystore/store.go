// Package registrystore loads and saves the anchor registry as JSON.
//
// A load is all-or-nothing: a missing source or a single malformed record
// aborts it before any registry is returned. Every save writes the primary
// file and a per-day backup next to it (or in BackupDir).
package registrystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/fsutil"
	"github.com/banshee-data/colour.registry/internal/monitoring"
	"github.com/banshee-data/colour.registry/internal/timeutil"
)

var (
	// ErrSourceNotFound means the reference file is missing or unreadable.
	ErrSourceNotFound = errors.New("reference source not found")
	// ErrMalformedAnchor means a record could not be turned into an anchor.
	ErrMalformedAnchor = errors.New("malformed anchor")
)

var logf = monitoring.Prefixed("registry")

// Decode parses a JSON array of anchor records into a registry.
func Decode(data []byte) (*anchor.Registry, error) {
	var raws []rawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnchor, err)
	}
	anchors := make([]*anchor.Anchor, 0, len(raws))
	for i, raw := range raws {
		a, err := raw.toAnchor()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedAnchor, i, err)
		}
		anchors = append(anchors, a)
	}
	reg, err := anchor.NewRegistry(anchors...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAnchor, err)
	}
	return reg, nil
}

// Encode renders the full state of every anchor, in registry order.
func Encode(reg *anchor.Registry) ([]byte, error) {
	records := make([]record, 0, reg.Len())
	for _, a := range reg.Anchors() {
		records = append(records, fromAnchor(a))
	}
	return json.MarshalIndent(records, "", "  ")
}

// Load reads path from fsys and decodes it.
func Load(fsys fsutil.FileSystem, path string) (*anchor.Registry, error) {
	return (&Store{FS: fsys, Path: path}).Load()
}

// Store reads and writes one registry file.
type Store struct {
	FS    fsutil.FileSystem
	Clock timeutil.Clock
	// Path is the primary registry file.
	Path string
	// BackupDir holds the dated backups; empty means Path's directory.
	BackupDir string
}

// NewStore returns a Store on the OS filesystem and wall clock.
func NewStore(path, backupDir string) *Store {
	return &Store{
		FS:        fsutil.OSFileSystem{},
		Clock:     timeutil.RealClock{},
		Path:      path,
		BackupDir: backupDir,
	}
}

// Load reads and decodes Path.
func (s *Store) Load() (*anchor.Registry, error) {
	data, err := s.FS.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, s.Path, err)
	}
	reg, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Path, err)
	}
	logf("loaded %d anchors from %s", reg.Len(), s.Path)
	return reg, nil
}

// BackupPath is the backup file for the current calendar day:
// <stem>_backup_<YYYY-MM-DD><ext>.
func (s *Store) BackupPath() string {
	base := filepath.Base(s.Path)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".json"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := s.BackupDir
	if dir == "" {
		dir = filepath.Dir(s.Path)
	}
	name := fmt.Sprintf("%s_backup_%s%s", stem, timeutil.DayStamp(s.Clock.Now()), ext)
	return filepath.Join(dir, name)
}

// Save writes reg to Path and to today's backup, overwriting an earlier
// backup from the same day. It returns the backup path.
func (s *Store) Save(reg *anchor.Registry) (string, error) {
	data, err := Encode(reg)
	if err != nil {
		return "", fmt.Errorf("encode registry: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.FS, s.Path, data, 0o644); err != nil {
		return "", fmt.Errorf("save registry: %w", err)
	}
	backup := s.BackupPath()
	if err := fsutil.WriteFileAtomic(s.FS, backup, data, 0o644); err != nil {
		return "", fmt.Errorf("save registry backup: %w", err)
	}
	logf("saved %d anchors to %s (backup %s)", reg.Len(), s.Path, backup)
	return backup, nil
}
