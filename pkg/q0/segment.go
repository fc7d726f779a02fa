package q0

import (
	"math"
)

// Span is an inclusive index range of a Buffer.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// requiredSignals lists the columns a session of kind needs.
func requiredSignals(kind SessionKind) []Signal {
	signals := []Signal{SignalDSLevel, SignalValvePos, SignalElecHeatDes, SignalElecHeatAct}
	if kind == KindMeasurement {
		signals = append(signals, SignalGradient, SignalDSPressure)
	}
	return signals
}

type segmenter struct {
	kind   SessionKind
	refs   References
	params Params

	n      int
	unix   []float64
	level  []float64
	us     []float64
	valve  []float64
	grad   []float64
	des    []float64
	act    []float64
	minDur float64
}

// Segment splits b into steady-state runs. A sample that changes the heater
// setpoint, drops the liquid level too low, moves the JT valve off its
// reference, lets the heater readback drift off its setpoint or (for
// measurements) steps the gradient ends the current run. A run is kept only
// when the breaking sample lies at least MinRunDuration after its start.
// An empty result is not an error.
func Segment(b *Buffer, kind SessionKind, refs References, p Params) ([]Span, error) {
	if err := b.Require(requiredSignals(kind)...); err != nil {
		return nil, err
	}

	s := &segmenter{
		kind:   kind,
		refs:   refs,
		params: p,
		n:      b.Len(),
		unix:   b.Unix(),
		level:  b.Column(SignalDSLevel),
		valve:  b.Column(SignalValvePos),
		des:    b.Column(SignalElecHeatDes),
		act:    b.Column(SignalElecHeatAct),
		minDur: p.MinRunDuration.Seconds(),
	}
	if p.CheckUpstreamLevel {
		s.us = b.Column(SignalUSLevel)
	}
	if kind == KindMeasurement {
		s.grad = b.Column(SignalGradient)
	}

	var spans []Span
	runStart := 0
	for i := 0; i < s.n; i++ {
		if !s.breaksAt(i) {
			continue
		}
		// duration runs up to the breaking sample
		end := i - 1
		if end > runStart && s.unix[i]-s.unix[runStart] >= s.minDur {
			spans = append(spans, Span{Start: runStart, End: end})
		}
		runStart = i
	}

	return spans, nil
}

func (s *segmenter) breaksAt(i int) bool {
	if i == s.n-1 {
		return true
	}

	des, act, level, valve := s.des[i], s.act[i], s.level[i], s.valve[i]
	if !IsValid(des) || !IsValid(act) || !IsValid(level) || !IsValid(valve) {
		return true
	}

	if i > 0 && des != s.des[i-1] {
		return true
	}

	if level < s.params.MinDownstreamLevel {
		return true
	}
	if s.us != nil && (!IsValid(s.us[i]) || s.us[i] < s.params.LowUpstreamLevel) {
		return true
	}

	if math.Abs(valve-s.refs.ValvePos) > s.params.ValveTolerance {
		return true
	}

	if math.Abs(act-des) > s.params.HeaterTolerance {
		return true
	}

	if s.grad != nil && i > 0 {
		cur, prev := s.grad[i], s.grad[i-1]
		if IsValid(cur) && IsValid(prev) && math.Abs(cur-prev) > s.params.GradientTolerance {
			return true
		}
	}

	return false
}
