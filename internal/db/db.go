// Package db is the SQLite sample log: every ingested sample with its match
// outcome, and a row per calibration run.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/httputil"
	"github.com/banshee-data/colour.registry/internal/matching"
	"github.com/banshee-data/colour.registry/internal/timeutil"
)

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to timestamp rows.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// RecordOutcome inserts one ingested sample. It satisfies matching.Recorder.
func (db *DB) RecordOutcome(s colour.Sample, o matching.Outcome) error {
	var colorID sql.NullInt64
	if o.ColorID != nil {
		colorID = sql.NullInt64{Int64: int64(*o.ColorID), Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO samples (
			sample_id, color_id, h, s, v, source, confidence,
			drift_h, drift_s, drift_v, applied, reason, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), colorID, s.H, s.S, s.V, s.Source, o.Confidence,
		o.Drift.H, o.Drift.S, o.Drift.V, o.Applied, string(o.Reason),
		db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordCalibration inserts a calibration run and returns its id.
func (db *DB) RecordCalibration(r anchor.CalibrationReport) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO calibration_runs (run_id, passes, converged, moved, max_shift, violations, ran_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.Passes, r.Converged, r.Moved(), r.MaxShift, len(r.Violations), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert calibration run: %w", err)
	}
	return id, nil
}

// SampleRecord is one row of the samples table.
type SampleRecord struct {
	SampleID   string          `json:"sample_id"`
	ColorID    *int            `json:"color_id"`
	Sample     colour.Sample   `json:"sample"`
	Confidence float64         `json:"confidence"`
	Drift      colour.Vec      `json:"drift"`
	Applied    bool            `json:"applied"`
	Reason     matching.Reason `json:"reason,omitempty"`
	ObservedAt int64           `json:"observed_at"`
}

// RecentSamples returns the newest samples first. colorID < 0 means every
// colour, including unmatched samples.
func (db *DB) RecentSamples(colorID, limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT sample_id, color_id, h, s, v, source, confidence,
			drift_h, drift_s, drift_v, applied, reason, observed_at
		FROM samples`
	args := []interface{}{}
	if colorID >= 0 {
		query += " WHERE color_id = ?"
		args = append(args, colorID)
	}
	query += " ORDER BY observed_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var (
			rec    SampleRecord
			id     sql.NullInt64
			reason string
		)
		if err := rows.Scan(&rec.SampleID, &id, &rec.Sample.H, &rec.Sample.S, &rec.Sample.V,
			&rec.Sample.Source, &rec.Confidence, &rec.Drift.H, &rec.Drift.S, &rec.Drift.V,
			&rec.Applied, &reason, &rec.ObservedAt); err != nil {
			return nil, err
		}
		if id.Valid {
			v := int(id.Int64)
			rec.ColorID = &v
		}
		rec.Reason = matching.Reason(reason)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnchorStat summarises the logged samples of one colour.
type AnchorStat struct {
	ColorID        int     `json:"color_id"`
	Samples        int     `json:"samples"`
	Applied        int     `json:"applied"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// AnchorStats aggregates matched samples per colour, ordered by colour id.
func (db *DB) AnchorStats() ([]AnchorStat, error) {
	rows, err := db.Query(`
		SELECT color_id, COUNT(*), COALESCE(SUM(applied), 0), AVG(confidence)
		FROM samples
		WHERE color_id IS NOT NULL
		GROUP BY color_id
		ORDER BY color_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnchorStat
	for rows.Next() {
		var st AnchorStat
		if err := rows.Scan(&st.ColorID, &st.Samples, &st.Applied, &st.MeanConfidence); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CalibrationRun is one row of calibration_runs.
type CalibrationRun struct {
	RunID      string  `json:"run_id"`
	Passes     int     `json:"passes"`
	Converged  bool    `json:"converged"`
	Moved      int     `json:"moved"`
	MaxShift   float64 `json:"max_shift"`
	Violations int     `json:"violations"`
	RanAt      int64   `json:"ran_at"`
}

// CalibrationRuns lists the newest runs first.
func (db *DB) CalibrationRuns(limit int) ([]CalibrationRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT run_id, passes, converged, moved, max_shift, violations, ran_at
		FROM calibration_runs
		ORDER BY ran_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationRun
	for rows.Next() {
		var r CalibrationRun
		if err := rows.Scan(&r.RunID, &r.Passes, &r.Converged, &r.Moved, &r.MaxShift, &r.Violations, &r.RanAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Sample log",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("anchor-stats", "Logged samples per colour", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.AnchorStats()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read anchor stats: %v", err))
			return
		}
		httputil.WriteJSONOK(w, stats)
	}))
}
