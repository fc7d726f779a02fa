package q0

import (
	"errors"
	"testing"
	"time"
)

func TestBufferAppend(t *testing.T) {
	b := NewBuffer(SignalDSLevel, SignalValvePos, SignalDSLevel)
	if got := len(b.Signals()); got != 2 {
		t.Fatalf("expected duplicate signals to collapse, got %d signals", got)
	}

	if err := b.Append(testStart, map[Signal]float64{SignalDSLevel: 92, SignalGradient: 16}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if b.Has(SignalGradient) {
		t.Fatalf("undeclared signal must not be added")
	}
	if v := b.Column(SignalValvePos)[0]; IsValid(v) {
		t.Fatalf("missing value should be invalid, got %v", v)
	}
	if n := b.CountInvalid(SignalValvePos); n != 1 {
		t.Fatalf("expected 1 invalid valve reading, got %d", n)
	}

	err := b.Append(testStart.Add(-time.Second), map[Signal]float64{SignalDSLevel: 92})
	if !errors.Is(err, ErrInputData) {
		t.Fatalf("expected ErrInputData for time going backwards, got %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("rejected sample must not be stored, len=%d", b.Len())
	}

	if err := b.Append(testStart, map[Signal]float64{SignalDSLevel: 93}); err != nil {
		t.Fatalf("equal timestamps should be accepted: %v", err)
	}
}

func TestBufferSamples(t *testing.T) {
	b := NewBuffer(SignalDSLevel, SignalValvePos)
	_ = b.Append(testStart, map[Signal]float64{SignalDSLevel: 92, SignalValvePos: Invalid})
	_ = b.Append(testStart.Add(time.Second), map[Signal]float64{SignalDSLevel: 91.5, SignalValvePos: 40})

	samples := b.Samples()
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if _, ok := samples[0].Values[SignalValvePos]; ok {
		t.Fatalf("invalid values should be left out of samples")
	}

	rebuilt, err := NewBufferFromSamples(b.Signals(), samples)
	if err != nil {
		t.Fatalf("NewBufferFromSamples returned error: %v", err)
	}
	if rebuilt.Len() != 2 || rebuilt.Column(SignalValvePos)[1] != 40 || IsValid(rebuilt.Column(SignalValvePos)[0]) {
		t.Fatalf("rebuilt buffer does not match: %v", rebuilt.Column(SignalValvePos))
	}
	if u := rebuilt.Unix(); u[1]-u[0] != 1 {
		t.Fatalf("expected 1 s between samples, got %v", u[1]-u[0])
	}
}

func TestBufferRequire(t *testing.T) {
	b := NewBuffer(SignalDSLevel)
	if err := b.Require(SignalDSLevel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Require(SignalDSLevel, SignalElecHeatAct); !errors.Is(err, ErrInputData) {
		t.Fatalf("expected ErrInputData, got %v", err)
	}
}
