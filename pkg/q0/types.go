package q0

import "time"

// SessionKind tells calibration sessions and measurement sessions apart.
type SessionKind string

const (
	// KindCalibration is a cryomodule heater calibration.
	KindCalibration SessionKind = "Calibration"
	// KindMeasurement is a cavity Q0 measurement.
	KindMeasurement SessionKind = "Measurement"
)

// RunKind tells heater runs and RF runs apart.
type RunKind string

const (
	// RunHeater is a run where the electric heat load differs from the
	// session reference.
	RunHeater RunKind = "Heater"
	// RunRF is a run at the reference electric heat load, i.e. any extra heat
	// comes from RF.
	RunRF RunKind = "RF"
)

// References are the operating point a session is measured against.
type References struct {
	// HeatLoad is the summed electric heater setpoint at rest, in W.
	HeatLoad float64 `json:"heatLoad"`
	// ValvePos is the locked JT valve position, in %.
	ValvePos float64 `json:"valvePos"`
	// Gradient is the requested cavity gradient in MV/m. Measurement only.
	Gradient float64 `json:"gradient,omitempty"`
}

// Window is the acquisition window of a session.
type Window struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Interval time.Duration `json:"interval"`
}

// NumPoints returns how many samples the window holds at its interval.
func (w Window) NumPoints() int {
	if w.Interval <= 0 || !w.End.After(w.Start) {
		return 0
	}
	return int(w.End.Sub(w.Start) / w.Interval)
}

// Run is one steady-state segment of a session.
//
// RawStart, Start and End are inclusive indices into the session buffer.
// RawStart is where segmentation put the run, Start is where it begins after
// the settle trim.
type Run struct {
	Index    int     `json:"index"`
	Kind     RunKind `json:"kind"`
	RawStart int     `json:"rawStart"`
	Start    int     `json:"start"`
	End      int     `json:"end"`

	// HeatSetpoint is the desired electric heat load over the reference, W.
	HeatSetpoint float64 `json:"heatSetpoint"`
	// ElecHeatLoad is the mean heater readback over the run minus the
	// readback at the start of the session, W.
	ElecHeatLoad float64 `json:"elecHeatLoad"`

	CutoffSeconds   int     `json:"cutoffSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`

	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
}

// Number is the 1-based run number used in reports.
func (r Run) Number() int {
	return r.Index + 1
}

// Fit returns the level fit of the run.
func (r Run) Fit() Line {
	return Line{Slope: r.Slope, Intercept: r.Intercept, RSquared: r.RSquared}
}
