package q0

import (
	pkgerrors "github.com/pkg/errors"
)

// CurvePoint is one heater run on the calibration plot.
type CurvePoint struct {
	RunIndex int     `json:"runIndex"`
	HeatLoad float64 `json:"heatLoad"`
	Slope    float64 `json:"slope"`
}

// Curve is the heater calibration of a cryomodule: the liquid level drain
// rate as a linear function of heat load. It is not modified after FitCurve
// returns and may be shared by any number of measurement sessions.
type Curve struct {
	// CalibrationID is the ID of the session the curve was fit from.
	CalibrationID string `json:"calibrationID,omitempty"`

	// Slope (m) in %/s per W and Intercept (b) in %/s of the raw fit.
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`

	// OriginAdjustment is the raw heat load at which the fit crosses zero
	// drain rate, -b/m. Shifting heat loads by it makes the line pass
	// through the origin.
	OriginAdjustment float64 `json:"originAdjustment"`

	Points []CurvePoint `json:"points"`
}

// AdjustHeatLoad moves a raw heat load onto the adjusted axis.
func (c *Curve) AdjustHeatLoad(h float64) float64 {
	return h - c.OriginAdjustment
}

// HeatLoad returns the adjusted heat load that produces the given drain
// rate.
func (c *Curve) HeatLoad(slope float64) float64 {
	return slope / c.Slope
}

// SlopeAt returns the drain rate at an adjusted heat load.
func (c *Curve) SlopeAt(adjusted float64) float64 {
	return c.Slope * adjusted
}

// FitCurve fits a calibration curve over the heater runs among runs. Runs
// must already be fitted. At least two distinct heater settings are needed.
func FitCurve(runs []Run) (*Curve, error) {
	var heatLoads, slopes []float64
	var points []CurvePoint
	settings := map[float64]struct{}{}
	for _, r := range runs {
		if r.Kind != RunHeater {
			continue
		}
		heatLoads = append(heatLoads, r.ElecHeatLoad)
		slopes = append(slopes, r.Slope)
		points = append(points, CurvePoint{RunIndex: r.Index, HeatLoad: r.ElecHeatLoad, Slope: r.Slope})
		settings[r.HeatSetpoint] = struct{}{}
	}

	if len(settings) < 2 {
		return nil, pkgerrors.Wrapf(ErrInputData, "need at least 2 distinct heater settings for a calibration, got %d", len(settings))
	}

	line, err := FitLine(heatLoads, slopes)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fit calibration curve")
	}
	if line.Slope == 0 {
		return nil, pkgerrors.Wrap(ErrInputData, "calibration curve is flat, drain rate does not depend on heat load")
	}

	return &Curve{
		Slope:            line.Slope,
		Intercept:        line.Intercept,
		RSquared:         line.RSquared,
		OriginAdjustment: -line.Intercept / line.Slope,
		Points:           points,
	}, nil
}
