package q0

import (
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Params holds the thresholds used to segment and trim runs. It is passed by
// value and never modified by the pipeline.
type Params struct {
	// MinRunDuration is the shortest run that is kept, in real time.
	MinRunDuration time.Duration `json:"minRunDuration"`
	// ValveTolerance is the allowed JT valve deviation from the reference.
	ValveTolerance float64 `json:"valveTolerance"`
	// HeaterTolerance is the allowed difference between heater readback and
	// heater setpoint, W.
	HeaterTolerance float64 `json:"heaterTolerance"`
	// GradientTolerance is the gradient step (MV/m) that starts a new run.
	GradientTolerance float64 `json:"gradientTolerance"`
	// MinDownstreamLevel is the lowest usable downstream liquid level, %.
	MinDownstreamLevel float64 `json:"minDownstreamLevel"`
	// LowUpstreamLevel is the lowest usable upstream liquid level, %. Only
	// checked when CheckUpstreamLevel is set and the session has the signal.
	LowUpstreamLevel   float64 `json:"lowUpstreamLevel"`
	CheckUpstreamLevel bool    `json:"checkUpstreamLevel"`
	// SettleSecondsPerWatt is how long the helium bath takes to reflect a
	// 1 W heat load change.
	SettleSecondsPerWatt float64 `json:"settleSecondsPerWatt"`
	// MaxFlatLevelSlope is the largest |dLL/dt| (%/s) still considered flat
	// when deriving a reference valve position.
	MaxFlatLevelSlope float64 `json:"maxFlatLevelSlope"`
	// SampleInterval is the archiver sampling interval.
	SampleInterval time.Duration `json:"sampleInterval"`
}

// DefaultParams returns the parameters operators normally run with.
func DefaultParams() Params {
	return Params{
		MinRunDuration:       900 * time.Second,
		ValveTolerance:       2,
		HeaterTolerance:      1,
		GradientTolerance:    0.7,
		MinDownstreamLevel:   90,
		LowUpstreamLevel:     66,
		CheckUpstreamLevel:   false,
		SettleSecondsPerWatt: 25,
		MaxFlatLevelSlope:    1e-4,
		SampleInterval:       time.Second,
	}
}

// Validate reports parameters the pipeline cannot work with.
func (p Params) Validate() error {
	switch {
	case p.MinRunDuration <= 0:
		return pkgerrors.Errorf("minimum run duration must be positive, got %s", p.MinRunDuration)
	case p.ValveTolerance < 0:
		return pkgerrors.Errorf("valve tolerance must not be negative, got %g", p.ValveTolerance)
	case p.HeaterTolerance < 0:
		return pkgerrors.Errorf("heater tolerance must not be negative, got %g", p.HeaterTolerance)
	case p.GradientTolerance < 0:
		return pkgerrors.Errorf("gradient tolerance must not be negative, got %g", p.GradientTolerance)
	case p.SettleSecondsPerWatt < 0:
		return pkgerrors.Errorf("settle time per watt must not be negative, got %g", p.SettleSecondsPerWatt)
	case p.SampleInterval <= 0:
		return pkgerrors.Errorf("sample interval must be positive, got %s", p.SampleInterval)
	}
	return nil
}
