// Package store persists processed sessions to PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/q0"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = pkgerrors.New("session not found")

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create database pool")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return pkgerrors.Wrap(err, "failed to migrate schema")
}

const upsertSessionSQL = `INSERT INTO q0.sessions (id, name, kind, window_start, window_end, interval_s,
    ref_heat_load, ref_valve_pos, ref_gradient, calibration_id,
    curve_slope, curve_intercept, curve_r_squared, origin_adjust, heat_adjustment, no_runs, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    calibration_id = EXCLUDED.calibration_id,
    curve_slope = EXCLUDED.curve_slope,
    curve_intercept = EXCLUDED.curve_intercept,
    curve_r_squared = EXCLUDED.curve_r_squared,
    origin_adjust = EXCLUDED.origin_adjust,
    heat_adjustment = EXCLUDED.heat_adjustment,
    no_runs = EXCLUDED.no_runs,
    updated_at = NOW()`

const deleteRunsSQL = `DELETE FROM q0.runs WHERE session_id = $1`

const deleteResultsSQL = `DELETE FROM q0.rf_results WHERE session_id = $1`

const insertRunSQL = `INSERT INTO q0.runs (session_id, idx, kind, start_ts, end_ts, heat_setpoint, elec_heat_load,
    cutoff_s, duration_s, slope, intercept, r_squared)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

const insertResultSQL = `INSERT INTO q0.rf_results (session_id, run_idx, total_heat_load, rf_heat_load, q0,
    avg_pressure, rms_gradient, valid, invalid_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// SaveSession writes a processed session with its runs and results in one
// transaction. Saving the same session again replaces its runs and results.
func (s *Store) SaveSession(ctx context.Context, sess *q0.Session) error {
	if !sess.Processed() {
		return pkgerrors.Errorf("session %s has not been processed", sess.ID())
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(upsertSessionSQL, sessionRow(sess)...)
	batch.Queue(deleteRunsSQL, sess.ID())
	batch.Queue(deleteResultsSQL, sess.ID())
	runs := runRows(sess)
	for _, r := range runs {
		batch.Queue(insertRunSQL, r...)
	}
	results := resultRows(sess)
	for _, r := range results {
		batch.Queue(insertResultSQL, r...)
	}

	res := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return pkgerrors.Wrapf(err, "failed to save session %s", sess.ID())
		}
	}
	if err := res.Close(); err != nil {
		return pkgerrors.Wrap(err, "failed to close batch")
	}
	if err := tx.Commit(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to commit session")
	}

	logrus.WithFields(logrus.Fields{
		"id":      sess.ID(),
		"runs":    len(runs),
		"results": len(results),
	}).Debug("saved session")
	return nil
}

const curveSQL = `SELECT curve_slope, curve_intercept, curve_r_squared, origin_adjust
FROM q0.sessions
WHERE id = $1 AND kind = $2 AND curve_slope IS NOT NULL`

const curvePointsSQL = `SELECT idx, heat_setpoint, slope
FROM q0.runs
WHERE session_id = $1 AND kind = $2
ORDER BY idx`

// LoadCurve loads the calibration curve fit by a stored calibration session.
func (s *Store) LoadCurve(ctx context.Context, id string) (*q0.Curve, error) {
	c := &q0.Curve{CalibrationID: id}
	err := s.pool.QueryRow(ctx, curveSQL, id, string(q0.KindCalibration)).
		Scan(&c.Slope, &c.Intercept, &c.RSquared, &c.OriginAdjustment)
	if pkgerrors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.Wrapf(ErrNotFound, "calibration %s", id)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load calibration %s", id)
	}

	rows, err := s.pool.Query(ctx, curvePointsSQL, id, string(q0.RunHeater))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load calibration points of %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var p q0.CurvePoint
		if err := rows.Scan(&p.RunIndex, &p.HeatLoad, &p.Slope); err != nil {
			return nil, err
		}
		c.Points = append(c.Points, p)
	}
	return c, rows.Err()
}

// nullable maps invalid readings to SQL NULL.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func sessionRow(s *q0.Session) []any {
	w := s.Window()
	refs := s.References()

	var gradient, calibrationID any
	if s.Kind() == q0.KindMeasurement {
		gradient = refs.Gradient
	}
	var slope, intercept, r2, oa, heatAdj any
	if c := s.Curve(); c != nil {
		if c.CalibrationID != "" {
			calibrationID = c.CalibrationID
		}
		slope, intercept, r2, oa = c.Slope, c.Intercept, c.RSquared, c.OriginAdjustment
	}
	if s.Kind() == q0.KindMeasurement {
		heatAdj = s.HeatAdjustment()
	}

	return []any{
		s.ID(), s.Name(), string(s.Kind()),
		w.Start, w.End, w.Interval.Seconds(),
		refs.HeatLoad, refs.ValvePos, gradient, calibrationID,
		slope, intercept, r2, oa, heatAdj,
		s.NoRuns(),
	}
}

func runRows(s *q0.Session) [][]any {
	times := s.Buffer().Times()
	runs := s.Runs()
	rows := make([][]any, 0, len(runs))
	for _, r := range runs {
		var start, end time.Time
		if r.Start < len(times) {
			start = times[r.Start]
		}
		if r.End < len(times) {
			end = times[r.End]
		}
		rows = append(rows, []any{
			s.ID(), r.Index, string(r.Kind), start, end,
			r.HeatSetpoint, r.ElecHeatLoad, r.CutoffSeconds, r.DurationSeconds,
			r.Slope, r.Intercept, r.RSquared,
		})
	}
	return rows
}

func resultRows(s *q0.Session) [][]any {
	results := s.Results()
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		var reason *string
		if r.InvalidReason != "" {
			reason = &r.InvalidReason
		}
		rows = append(rows, []any{
			s.ID(), r.RunIndex, r.TotalHeatLoad, r.RFHeatLoad, nullable(r.Q0),
			nullable(r.AvgPressure), nullable(r.RMSGradient), r.Valid, reason,
		})
	}
	return rows
}
