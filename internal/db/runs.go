package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/radartrack/internal/track"
	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunRecord describes one estimation run.
type RunRecord struct {
	ID               string     `json:"run_id"`
	Source           string     `json:"source"`
	AssociationRule  string     `json:"association_rule"`
	ConfigJSON       string     `json:"config_json"`
	Status           string     `json:"status"`
	Error            string     `json:"error,omitempty"`
	MeasurementCount int        `json:"measurement_count"`
	OutputCount      int        `json:"output_count"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// CreateRun inserts r with status running and returns its ID. A new UUID is
// assigned when r.ID is empty and StartedAt defaults to now.
func (db *DB) CreateRun(r *RunRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.ConfigJSON == "" {
		r.ConfigJSON = "{}"
	}
	r.Status = StatusRunning

	_, err := db.Exec(`
		INSERT INTO runs (run_id, source, association_rule, config_json, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, r.AssociationRule, r.ConfigJSON, r.Status, r.StartedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return r.ID, nil
}

// RecordMeasurements appends ms to the run's measurement log. Sequence
// numbers continue from any measurements already recorded.
func (db *DB) RecordMeasurements(runID string, ms []track.Measurement) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	base, err := nextSeq(tx, "measurements", runID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO measurements (run_id, seq, t, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare measurement insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range ms {
		if _, err := stmt.Exec(runID, base+i, nullable(m.Time), nullable(m.X), nullable(m.Y), nullable(m.Z)); err != nil {
			return fmt.Errorf("failed to record measurement %d: %w", base+i, err)
		}
	}

	if err := bumpCount(tx, "measurement_count", runID, len(ms)); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordOutputs appends filtered outputs to the run.
func (db *DB) RecordOutputs(runID string, outs []track.Output) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	base, err := nextSeq(tx, "outputs", runID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO outputs (
			run_id, seq, t, range_m, azimuth_deg, elevation_deg,
			x, y, z, vx, vy, vz, selected, weights_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare output insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range outs {
		weights := o.Weights
		if weights == nil {
			weights = []float64{}
		}
		weightsJSON, err := json.Marshal(weights)
		if err != nil {
			return fmt.Errorf("failed to encode weights for output %d: %w", base+i, err)
		}
		s := o.State
		if _, err := stmt.Exec(
			runID, base+i, o.Time, o.Range, o.AzimuthDeg, o.ElevationDeg,
			s[0], s[1], s[2], s[3], s[4], s[5], o.Selected, string(weightsJSON),
		); err != nil {
			return fmt.Errorf("failed to record output %d: %w", base+i, err)
		}
	}

	if err := bumpCount(tx, "output_count", runID, len(outs)); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishRun marks the run as finished with the given status. errMsg is
// stored for failed runs and may be empty.
func (db *DB) FinishRun(runID, status, errMsg string) error {
	switch status {
	case StatusComplete, StatusFailed:
	default:
		return fmt.Errorf("invalid final status %q", status)
	}

	res, err := db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		status, errMsg, time.Now().UTC().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	row := db.QueryRow(`
		SELECT run_id, source, association_rule, config_json, status, error,
			measurement_count, output_count, started_at, finished_at
		FROM runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first, at most limit of them
// (limit <= 0 means 100).
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT run_id, source, association_rule, config_json, status, error,
			measurement_count, output_count, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListOutputs returns the run's outputs in the order they were produced.
func (db *DB) ListOutputs(runID string) ([]track.Output, error) {
	rows, err := db.Query(`
		SELECT t, range_m, azimuth_deg, elevation_deg, x, y, z, vx, vy, vz, selected, weights_json
		FROM outputs
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	var outs []track.Output
	for rows.Next() {
		var (
			o           track.Output
			weightsJSON string
		)
		s := &o.State
		if err := rows.Scan(
			&o.Time, &o.Range, &o.AzimuthDeg, &o.ElevationDeg,
			&s[0], &s[1], &s[2], &s[3], &s[4], &s[5],
			&o.Selected, &weightsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		if err := json.Unmarshal([]byte(weightsJSON), &o.Weights); err != nil {
			return nil, fmt.Errorf("failed to decode weights: %w", err)
		}
		outs = append(outs, o)
	}
	return outs, rows.Err()
}

// ListMeasurements returns the run's recorded measurements in input order.
// Non-finite values, which SQLite stores as NULL, come back as NaN.
func (db *DB) ListMeasurements(runID string) ([]track.Measurement, error) {
	rows, err := db.Query(`SELECT t, x, y, z FROM measurements WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var ms []track.Measurement
	for rows.Next() {
		var t, x, y, z sql.NullFloat64
		if err := rows.Scan(&t, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		ms = append(ms, track.Measurement{Time: orNaN(t), X: orNaN(x), Y: orNaN(y), Z: orNaN(z)})
	}
	return ms, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		r         RunRecord
		startedAt int64
		finished  sql.NullInt64
	)
	if err := s.Scan(
		&r.ID, &r.Source, &r.AssociationRule, &r.ConfigJSON, &r.Status, &r.Error,
		&r.MeasurementCount, &r.OutputCount, &startedAt, &finished,
	); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAt).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}

func nextSeq(tx *sql.Tx, table, runID string) (int, error) {
	var n int
	// table is one of two constants chosen by the caller
	err := tx.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func bumpCount(tx *sql.Tx, column, runID string, n int) error {
	res, err := tx.Exec(`UPDATE runs SET `+column+` = `+column+` + ? WHERE run_id = ?`, n, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
