package batch

import (
	"context"
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/archive"
	"github.com/charlie0129/q0/pkg/q0"
)

// Status is the outcome of one session in a batch.
type Status string

const (
	StatusOK      Status = "ok"
	StatusNoRuns  Status = "no runs"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// SessionResult is the outcome of one session.
type SessionResult struct {
	Name    string      `json:"name"`
	ID      string      `json:"id,omitempty"`
	Cavity  int         `json:"cavity,omitempty"`
	Status  Status      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Session *q0.Session `json:"-"`
}

// CryomoduleResult is the outcome of a calibration and its measurements.
type CryomoduleResult struct {
	Cryomodule   archive.Cryomodule `json:"cryomodule"`
	Calibration  SessionResult      `json:"calibration"`
	Measurements []SessionResult    `json:"measurements"`
}

// Result is the outcome of a whole plan.
type Result struct {
	Cryomodules []CryomoduleResult `json:"cryomodules"`
}

// Failed returns how many sessions failed or were skipped.
func (r *Result) Failed() int {
	n := 0
	for _, cm := range r.Cryomodules {
		if cm.Calibration.Status == StatusFailed {
			n++
		}
		for _, m := range cm.Measurements {
			if m.Status == StatusFailed || m.Status == StatusSkipped {
				n++
			}
		}
	}
	return n
}

// Sink receives every successfully processed session.
type Sink interface {
	SaveSession(ctx context.Context, s *q0.Session) error
}

// Sinks fans a session out to every sink. All sinks are tried; their errors
// are joined.
type Sinks []Sink

func (ss Sinks) SaveSession(ctx context.Context, s *q0.Session) error {
	var errs []error
	for _, sink := range ss {
		if err := sink.SaveSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Runner processes plans.
type Runner struct {
	Params q0.Params
	// Fetcher is used for sessions without a file. May be nil when every
	// session has one.
	Fetcher archive.Fetcher
	DataDir string
	// Sink is optional.
	Sink Sink
}

// Run processes every cryomodule of the plan. A failing session never stops
// the others; measurements are skipped only when their calibration did not
// produce a curve. Run returns an error only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Result, error) {
	dataDir := r.DataDir
	if plan.DataDir != "" {
		dataDir = plan.DataDir
	}

	res := &Result{}
	for _, cm := range plan.Cryomodules {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cmRes := CryomoduleResult{Cryomodule: cm.Cryomodule}
		logger := logrus.WithField("cryomodule", cm.Name())

		calib := r.runSession(ctx, dataDir, cm.Cryomodule, cm.Calibration, nil)
		cmRes.Calibration = calib

		var curve *q0.Curve
		if calib.Session != nil {
			curve = calib.Session.Curve()
		}
		if curve == nil {
			logger.WithField("status", calib.Status).Warn("no calibration curve, skipping measurements")
		}

		for _, m := range cm.Measurements {
			if curve == nil {
				cmRes.Measurements = append(cmRes.Measurements, SessionResult{
					Name:   measurementName(cm.Cryomodule, m.Cavity),
					Cavity: m.Cavity,
					Status: StatusSkipped,
					Error:  "calibration did not produce a curve",
				})
				continue
			}
			cmRes.Measurements = append(cmRes.Measurements, r.runSession(ctx, dataDir, cm.Cryomodule, m, curve))
		}

		res.Cryomodules = append(res.Cryomodules, cmRes)
	}
	return res, nil
}

func calibrationName(cm archive.Cryomodule) string {
	return cm.Name() + " calibration"
}

func measurementName(cm archive.Cryomodule, cavity int) string {
	return fmt.Sprintf("%s cavity %d", cm.Name(), cavity)
}

// runSession loads and processes one session. A nil curve means a
// calibration.
func (r *Runner) runSession(ctx context.Context, dataDir string, cm archive.Cryomodule, sp SessionPlan, curve *q0.Curve) SessionResult {
	name := calibrationName(cm)
	cavity := 0
	if curve != nil {
		name = measurementName(cm, sp.Cavity)
		cavity = sp.Cavity
	}
	res := SessionResult{Name: name, Cavity: cavity}
	logger := logrus.WithField("session", name)

	fail := func(err error) SessionResult {
		logger.WithError(err).Error("session failed")
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	buf, w, err := r.load(ctx, dataDir, cm, cavity, sp)
	if err != nil {
		return fail(err)
	}

	var s *q0.Session
	if curve == nil {
		s, err = q0.NewCalibrationSession(name, w, sp.References(), r.Params, buf)
	} else {
		s, err = q0.NewMeasurementSession(name, w, sp.References(), r.Params, buf, curve)
	}
	if err != nil {
		return fail(err)
	}
	res.ID = s.ID()
	res.Session = s

	if err := s.Process(); err != nil {
		res.Session = nil
		return fail(err)
	}

	res.Status = StatusOK
	if s.NoRuns() {
		res.Status = StatusNoRuns
	}

	if r.Sink != nil && !s.NoRuns() {
		if err := r.Sink.SaveSession(ctx, s); err != nil {
			logger.WithError(err).Warn("failed to save session")
		}
	}
	return res
}

// Load reads or fetches the data of one session the way Run does.
func (r *Runner) Load(ctx context.Context, cm archive.Cryomodule, cavity int, sp SessionPlan) (*q0.Buffer, q0.Window, error) {
	return r.load(ctx, r.DataDir, cm, cavity, sp)
}

func (r *Runner) load(ctx context.Context, dataDir string, cm archive.Cryomodule, cavity int, sp SessionPlan) (*q0.Buffer, q0.Window, error) {
	cols := cm.Columns(cavity)

	if sp.File != "" {
		fp, err := os.Open(sp.File)
		if err != nil {
			return nil, q0.Window{}, pkgerrors.Wrapf(err, "failed to open %s", sp.File)
		}
		defer fp.Close()
		buf, err := archive.ReadCSV(fp, cols)
		if err != nil {
			return nil, q0.Window{}, pkgerrors.Wrapf(err, "failed to read %s", sp.File)
		}

		if sp.HasWindow() {
			w, err := sp.Window(r.Params.SampleInterval)
			return buf, w, err
		}
		return buf, windowOf(buf, r.Params), nil
	}

	if r.Fetcher == nil {
		return nil, q0.Window{}, pkgerrors.New("session has no file and no archive fetcher is configured")
	}
	w, err := sp.Window(r.Params.SampleInterval)
	if err != nil {
		return nil, q0.Window{}, err
	}
	buf, err := archive.Acquire(ctx, r.Fetcher, cols, w, archive.CacheFileName(dataDir, cm, cavity, w))
	return buf, w, err
}

// windowOf spans the samples of b.
func windowOf(b *q0.Buffer, p q0.Params) q0.Window {
	times := b.Times()
	if len(times) == 0 {
		return q0.Window{Interval: p.SampleInterval}
	}
	return q0.Window{Start: times[0], End: times[len(times)-1], Interval: p.SampleInterval}
}
