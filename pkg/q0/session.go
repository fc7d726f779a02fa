package q0

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("q0/session"))

// SessionID returns a stable identifier for a session. The same name, window,
// references and calibration always give the same ID.
func SessionID(kind SessionKind, name string, w Window, refs References, calibrationID string) string {
	key := fmt.Sprintf("%s|%s|%d|%d|%d|%g|%g|%g|%s",
		kind, name,
		w.Start.Unix(), w.End.Unix(), int64(w.Interval/time.Second),
		refs.HeatLoad, refs.ValvePos, refs.Gradient,
		calibrationID,
	)
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

// Session is one calibration or measurement. Create it with
// NewCalibrationSession or NewMeasurementSession and call Process once.
// After Process returns the session does not change.
type Session struct {
	id     string
	name   string
	kind   SessionKind
	window Window
	refs   References
	params Params
	buf    *Buffer

	// measurement: the curve to project onto; calibration: the fit result
	curve *Curve

	processed      bool
	runs           []Run
	results        []RFResult
	heatAdjustment float64
}

// NewCalibrationSession creates a heater calibration session over buf.
func NewCalibrationSession(name string, w Window, refs References, p Params, buf *Buffer) (*Session, error) {
	return newSession(KindCalibration, name, w, refs, p, buf, nil)
}

// NewMeasurementSession creates a Q0 measurement session over buf that
// projects its runs onto curve.
func NewMeasurementSession(name string, w Window, refs References, p Params, buf *Buffer, curve *Curve) (*Session, error) {
	if curve == nil {
		return nil, pkgerrors.Wrap(ErrInputData, "measurement session needs a calibration curve")
	}
	return newSession(KindMeasurement, name, w, refs, p, buf, curve)
}

func newSession(kind SessionKind, name string, w Window, refs References, p Params, buf *Buffer, curve *Curve) (*Session, error) {
	if buf == nil {
		return nil, pkgerrors.Wrap(ErrInputData, "session has no data")
	}
	if err := p.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid parameters")
	}
	if err := buf.Require(requiredSignals(kind)...); err != nil {
		return nil, err
	}

	calibrationID := ""
	if curve != nil {
		calibrationID = curve.CalibrationID
	}

	return &Session{
		id:     SessionID(kind, name, w, refs, calibrationID),
		name:   name,
		kind:   kind,
		window: w,
		refs:   refs,
		params: p,
		buf:    buf,
		curve:  curve,
	}, nil
}

// Process segments, trims and fits the session's runs, then derives the
// calibration curve or the Q0 results depending on the session kind. A
// session with no runs is processed successfully; check NoRuns.
func (s *Session) Process() error {
	if s.processed {
		return ErrAlreadyProcessed
	}
	s.processed = true

	logger := logrus.WithFields(logrus.Fields{
		"session": s.name,
		"kind":    s.kind,
	})

	spans, err := Segment(s.buf, s.kind, s.refs, s.params)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to segment %s", s.name)
	}
	if len(spans) == 0 {
		logger.Warn("no steady-state runs found")
		return nil
	}

	baseline := s.buf.Column(SignalElecHeatAct)[0]
	if !IsValid(baseline) {
		return pkgerrors.Wrapf(ErrInputData, "%s: heater readback at session start is invalid", s.name)
	}

	trimmed, cutoffs := TrimSettle(s.buf, s.kind, s.refs, s.params, spans)

	des := s.buf.Column(SignalElecHeatDes)
	runs := make([]Run, len(spans))
	for i, sp := range spans {
		r := Run{
			Index:         i,
			Kind:          RunRF,
			RawStart:      sp.Start,
			Start:         trimmed[i].Start,
			End:           sp.End,
			HeatSetpoint:  des[sp.Start] - s.refs.HeatLoad,
			CutoffSeconds: cutoffs[i],
		}
		if des[sp.Start] != s.refs.HeatLoad {
			r.Kind = RunHeater
		}

		r.ElecHeatLoad, err = s.elecHeatLoad(sp, baseline)
		if err != nil {
			return pkgerrors.Wrapf(err, "%s", s.name)
		}

		if err := FitRun(s.buf, &r); err != nil {
			return pkgerrors.Wrapf(err, "%s", s.name)
		}

		logger.WithFields(logrus.Fields{
			"run":      r.Number(),
			"runKind":  r.Kind,
			"slope":    r.Slope,
			"rSquared": r.RSquared,
			"cutoff":   r.CutoffSeconds,
			"duration": r.DurationSeconds,
		}).Debug("run fitted")
		runs[i] = r
	}
	s.runs = runs

	switch s.kind {
	case KindCalibration:
		curve, err := FitCurve(runs)
		if err != nil {
			return pkgerrors.Wrapf(err, "%s", s.name)
		}
		curve.CalibrationID = s.id
		s.curve = curve
		logger.WithFields(logrus.Fields{
			"slope":            curve.Slope,
			"originAdjustment": curve.OriginAdjustment,
		}).Info("calibration curve fitted")
	case KindMeasurement:
		s.heatAdjustment = HeatAdjustment(runs, s.curve)
		for _, r := range runs {
			if r.Kind != RunRF {
				continue
			}
			res, err := EstimateRun(s.buf, r, s.curve, s.refs.Gradient, s.heatAdjustment)
			if err != nil {
				return pkgerrors.Wrapf(err, "%s", s.name)
			}
			s.results = append(s.results, res)
		}
		logger.WithField("results", len(s.results)).Info("Q0 estimated")
	}

	return nil
}

// elecHeatLoad is the mean valid heater readback over the untrimmed span,
// relative to the readback at the start of the session.
func (s *Session) elecHeatLoad(sp Span, baseline float64) (float64, error) {
	act := s.buf.Column(SignalElecHeatAct)
	var sum float64
	var n int
	for i := sp.Start; i <= sp.End; i++ {
		if !IsValid(act[i]) {
			continue
		}
		sum += act[i]
		n++
	}
	if n == 0 {
		return 0, pkgerrors.Wrapf(ErrInputData, "no valid heater readback between samples %d and %d", sp.Start, sp.End)
	}
	return sum/float64(n) - baseline, nil
}

// ID returns the stable session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Kind returns whether this is a calibration or a measurement.
func (s *Session) Kind() SessionKind { return s.kind }

// Window returns the acquisition window.
func (s *Session) Window() Window { return s.window }

// References returns the operating point of the session.
func (s *Session) References() References { return s.refs }

// Params returns the parameters the session is processed with.
func (s *Session) Params() Params { return s.params }

// Buffer returns the session data.
func (s *Session) Buffer() *Buffer { return s.buf }

// Processed reports whether Process has been called.
func (s *Session) Processed() bool { return s.processed }

// NoRuns reports whether processing found no usable run.
func (s *Session) NoRuns() bool { return s.processed && len(s.runs) == 0 }

// Runs returns a copy of the fitted runs.
func (s *Session) Runs() []Run {
	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

// Curve returns the calibration curve: the fitted one for a calibration
// session, the one it was measured against for a measurement session. It
// is nil for a calibration that has not produced a curve.
func (s *Session) Curve() *Curve { return s.curve }

// Results returns a copy of the Q0 results of a measurement session.
func (s *Session) Results() []RFResult {
	out := make([]RFResult, len(s.results))
	copy(out, s.results)
	return out
}

// HeatAdjustment returns the mean heater run adjustment of a measurement
// session.
func (s *Session) HeatAdjustment() float64 { return s.heatAdjustment }
