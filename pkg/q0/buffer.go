package q0

import (
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Signal names one column of a Buffer.
type Signal string

const (
	SignalDSLevel     Signal = "dsLevel"
	SignalUSLevel     Signal = "usLevel"
	SignalValvePos    Signal = "valvePos"
	SignalGradient    Signal = "gradient"
	SignalDSPressure  Signal = "dsPressure"
	SignalElecHeatDes Signal = "elecHeatDes"
	SignalElecHeatAct Signal = "elecHeatAct"
)

// Invalid marks a missing or unparseable reading.
var Invalid = math.NaN()

// IsValid reports whether v is a usable reading.
func IsValid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Sample is one row of a Buffer. Signals missing from Values are invalid.
type Sample struct {
	Time   time.Time          `json:"time"`
	Values map[Signal]float64 `json:"values"`
}

// Buffer holds parallel, time-aligned columns for a fixed set of signals.
// It is append-only and not safe for concurrent writes.
type Buffer struct {
	signals []Signal
	times   []time.Time
	unix    []float64
	cols    map[Signal][]float64
}

// NewBuffer creates an empty buffer carrying the given signals.
func NewBuffer(signals ...Signal) *Buffer {
	b := &Buffer{
		cols: make(map[Signal][]float64, len(signals)),
	}
	for _, s := range signals {
		if _, ok := b.cols[s]; ok {
			continue
		}
		b.signals = append(b.signals, s)
		b.cols[s] = nil
	}
	return b
}

// NewBufferFromSamples builds a buffer from rows, in order.
func NewBufferFromSamples(signals []Signal, samples []Sample) (*Buffer, error) {
	b := NewBuffer(signals...)
	for i, s := range samples {
		if err := b.Append(s.Time, s.Values); err != nil {
			return nil, pkgerrors.Wrapf(err, "sample %d", i)
		}
	}
	return b, nil
}

// Append adds one row. Values for signals the buffer does not carry are
// ignored, signals without a value are stored as Invalid. Time must not go
// backwards.
func (b *Buffer) Append(t time.Time, values map[Signal]float64) error {
	u := unixSeconds(t)
	if n := len(b.unix); n > 0 && u < b.unix[n-1] {
		return pkgerrors.Wrapf(ErrInputData, "time %s is before previous sample %s", t.Format(time.RFC3339), b.times[n-1].Format(time.RFC3339))
	}

	b.times = append(b.times, t)
	b.unix = append(b.unix, u)
	for _, s := range b.signals {
		v, ok := values[s]
		if !ok || !IsValid(v) {
			v = Invalid
		}
		b.cols[s] = append(b.cols[s], v)
	}
	return nil
}

// Len returns the number of rows.
func (b *Buffer) Len() int {
	return len(b.times)
}

// Signals returns the signals the buffer carries, in declaration order.
func (b *Buffer) Signals() []Signal {
	out := make([]Signal, len(b.signals))
	copy(out, b.signals)
	return out
}

// Has reports whether the buffer carries s.
func (b *Buffer) Has(s Signal) bool {
	_, ok := b.cols[s]
	return ok
}

// Require returns ErrInputData naming the first signal the buffer lacks.
func (b *Buffer) Require(signals ...Signal) error {
	for _, s := range signals {
		if !b.Has(s) {
			return pkgerrors.Wrapf(ErrInputData, "missing signal %s", s)
		}
	}
	return nil
}

// Column returns the values of s, or nil if the buffer does not carry it.
// The returned slice must not be modified.
func (b *Buffer) Column(s Signal) []float64 {
	return b.cols[s]
}

// Times returns the sample timestamps. The returned slice must not be
// modified.
func (b *Buffer) Times() []time.Time {
	return b.times
}

// Unix returns the sample timestamps as fractional Unix seconds. The
// returned slice must not be modified.
func (b *Buffer) Unix() []float64 {
	return b.unix
}

// Samples returns the buffer as rows. Invalid values are left out.
func (b *Buffer) Samples() []Sample {
	out := make([]Sample, len(b.times))
	for i, t := range b.times {
		values := make(map[Signal]float64, len(b.signals))
		for _, s := range b.signals {
			if v := b.cols[s][i]; IsValid(v) {
				values[s] = v
			}
		}
		out[i] = Sample{Time: t, Values: values}
	}
	return out
}

// CountInvalid returns how many readings of s are invalid.
func (b *Buffer) CountInvalid(s Signal) int {
	n := 0
	for _, v := range b.cols[s] {
		if !IsValid(v) {
			n++
		}
	}
	return n
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
