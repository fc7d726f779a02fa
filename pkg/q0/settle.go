package q0

import "math"

const (
	// design heat load of one cavity at its design gradient
	designGradient = 16.0 // MV/m
	designHeatLoad = 9.6  // W
)

// ApproxHeatFromGrad estimates the RF heat load of a cavity running at grad
// MV/m from its design point. Non-positive or invalid gradients give 0.
func ApproxHeatFromGrad(grad float64) float64 {
	if !(grad > 0) || math.IsInf(grad, 0) {
		return 0
	}
	return (grad / designGradient) * (grad / designGradient) * designHeatLoad
}

// SettleCutoff returns how many seconds the bath needs to settle after a heat
// load change of heatDelta W.
func SettleCutoff(heatDelta, secondsPerWatt float64) int {
	return int(heatDelta * secondsPerWatt)
}

// TrimSettle moves the start of every span forward past the settle time of
// the heat load change that opened it. Heat load changes are measured
// between the untrimmed starts of consecutive spans; the first span is
// measured against the session reference. It returns the trimmed spans and
// their cutoffs in seconds.
//
// A trimmed span may end up with Start > End when the cutoff exceeds the
// span length. FitRun rejects such spans.
func TrimSettle(b *Buffer, kind SessionKind, refs References, p Params, spans []Span) ([]Span, []int) {
	unix := b.Unix()
	des := b.Column(SignalElecHeatDes)
	var grad []float64
	if kind == KindMeasurement {
		grad = b.Column(SignalGradient)
	}

	heatAt := func(i int) float64 {
		h := des[i]
		if grad != nil {
			h += ApproxHeatFromGrad(grad[i])
		}
		return h
	}

	trimmed := make([]Span, len(spans))
	cutoffs := make([]int, len(spans))
	for k, sp := range spans {
		var heatDelta float64
		if k == 0 {
			heatDelta = heatAt(sp.Start) - refs.HeatLoad
		} else {
			heatDelta = math.Abs(heatAt(sp.Start) - heatAt(spans[k-1].Start))
		}

		cutoff := SettleCutoff(heatDelta, p.SettleSecondsPerWatt)
		start := sp.Start
		for start <= sp.End && unix[start]-unix[sp.Start] < float64(cutoff) {
			start++
		}

		trimmed[k] = Span{Start: start, End: sp.End}
		cutoffs[k] = cutoff
	}
	return trimmed, cutoffs
}
