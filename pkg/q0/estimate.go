package q0

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Drury's fit of the BCS surface resistance used to correct Q0 for the
// helium bath temperature.
const (
	q0C1 = 271.0
	q0C2 = 0.0000726
	q0C3 = 0.00000214
	q0C5 = 0.000000043
	q0C6 = -17.02

	// gradient offset of the C4 term, MV/m
	q0GradientOffset = 0.7
	// uncorrected Q0 is (E*L)^2 / (R/Q * P); 939.3 is L^2 scaled by R/Q
	q0GeometryFactor = 939.3

	// helium temperature in K from pressure in torr, linear around 2 K
	tempPerTorr  = 0.0125
	tempAtNoTorr = 1.705

	// temperature the correction normalises to
	q0RefTemp = 2.0
)

// HeliumTemp converts the downstream helium pressure (torr) to a bath
// temperature in K.
func HeliumTemp(pressure float64) float64 {
	return pressure*tempPerTorr + tempAtNoTorr
}

// CalcQ0 returns the 2 K equivalent Q0 of a cavity running at grad MV/m
// that dissipates rfHeatLoad W into a bath at pressure torr.
func CalcQ0(grad, rfHeatLoad, pressure float64) float64 {
	uncorrected := math.Pow(grad*1e6, 2) / (q0GeometryFactor * rfHeatLoad)

	temp := HeliumTemp(pressure)
	c4 := grad - q0GradientOffset
	c7 := q0C2 - (q0C3 * c4) + (q0C5 * c4 * c4)

	return q0C1 / ((c7/q0RefTemp)*math.Exp(q0C6/q0RefTemp) + q0C1/uncorrected - (c7/temp)*math.Exp(q0C6/temp))
}

// RFResult is the Q0 estimate of one RF run.
type RFResult struct {
	RunIndex int `json:"runIndex"`

	// TotalHeatLoad is the heat load on the adjusted axis, W.
	TotalHeatLoad float64 `json:"totalHeatLoad"`
	// RFHeatLoad is TotalHeatLoad minus the electric heat load, W.
	RFHeatLoad float64 `json:"rfHeatLoad"`
	Q0         float64 `json:"q0"`

	AvgPressure float64 `json:"avgPressure"`
	RMSGradient float64 `json:"rmsGradient"`

	FallbackGradientSamples int `json:"fallbackGradientSamples"`
	InvalidPressureSamples  int `json:"invalidPressureSamples"`

	Valid         bool   `json:"valid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// HeatAdjustment returns the mean offset between the electric heat load
// and the curve heat load over the heater runs of a measurement session,
// or 0 when there are none.
func HeatAdjustment(runs []Run, curve *Curve) float64 {
	var sum float64
	var n int
	for _, r := range runs {
		if r.Kind != RunHeater {
			continue
		}
		sum += r.ElecHeatLoad - curve.HeatLoad(r.Slope)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// EstimateRun projects the drain rate of an RF run onto curve and computes
// the mean Q0 over the trimmed span. Samples without a usable gradient fall
// back to refGradient; samples without a usable pressure are skipped.
//
// A non-positive RF heat load still produces a result, flagged invalid.
func EstimateRun(b *Buffer, run Run, curve *Curve, refGradient, heatAdjustment float64) (RFResult, error) {
	if run.Start > run.End || run.End >= b.Len() {
		return RFResult{}, pkgerrors.Wrapf(ErrInputData, "run %d has no samples", run.Number())
	}

	res := RFResult{
		RunIndex:      run.Index,
		TotalHeatLoad: curve.HeatLoad(run.Slope) + heatAdjustment,
		Valid:         true,
	}
	res.RFHeatLoad = res.TotalHeatLoad - run.ElecHeatLoad
	if res.RFHeatLoad <= 0 {
		res.Valid = false
		res.InvalidReason = fmt.Sprintf("non-positive RF heat load %.3f W", res.RFHeatLoad)
	}

	grad := b.Column(SignalGradient)
	pressure := b.Column(SignalDSPressure)

	var q0Sum, pSum, g2Sum float64
	var n int
	for i := run.Start; i <= run.End; i++ {
		p := pressure[i]
		if !IsValid(p) {
			res.InvalidPressureSamples++
			continue
		}
		g := grad[i]
		if !IsValid(g) || g == 0 {
			g = refGradient
			res.FallbackGradientSamples++
		}
		q0Sum += CalcQ0(g, res.RFHeatLoad, p)
		pSum += p
		g2Sum += g * g
		n++
	}

	logger := logrus.WithFields(logrus.Fields{
		"run":         run.Number(),
		"refGradient": refGradient,
	})
	if res.FallbackGradientSamples > 0 {
		logger.WithField("samples", res.FallbackGradientSamples).Warn("gradient readings missing, using reference gradient")
	}
	if res.InvalidPressureSamples > 0 {
		logger.WithField("samples", res.InvalidPressureSamples).Warn("pressure readings missing, samples skipped")
	}

	if n == 0 {
		return RFResult{}, pkgerrors.Wrapf(ErrInputData, "run %d has no valid pressure readings", run.Number())
	}

	res.Q0 = q0Sum / float64(n)
	if math.IsInf(res.Q0, 0) {
		// zero RF heat load with the bath at the reference temperature
		res.Q0 = 0
	}
	res.AvgPressure = pSum / float64(n)
	res.RMSGradient = math.Sqrt(g2Sum / float64(n))
	return res, nil
}
