package q0

import (
	"testing"
)

func TestHeliumTemp(t *testing.T) {
	if got := HeliumTemp(23.6); !approxEqual(got, 2, 1e-12) {
		t.Fatalf("expected 2 K at 23.6 torr, got %v", got)
	}
}

func TestCalcQ0(t *testing.T) {
	// At 2 K the temperature correction vanishes.
	uncorrected := (16e6 * 16e6) / (939.3 * 10)
	if got := CalcQ0(16, 10, 23.6); !approxEqual(got/uncorrected, 1, 1e-6) {
		t.Fatalf("expected %v at 2 K, got %v", uncorrected, got)
	}

	// Q0 falls as the RF heat load grows.
	for _, pressure := range []float64{22, 23.6, 25} {
		prev := CalcQ0(16, 0.5, pressure)
		for rf := 1.0; rf <= 30; rf++ {
			q := CalcQ0(16, rf, pressure)
			if !(q < prev) {
				t.Fatalf("p=%v: Q0 did not decrease from %v to %v at rf=%v", pressure, prev, q, rf)
			}
			prev = q
		}
	}
}

func TestHeatAdjustment(t *testing.T) {
	c := &Curve{Slope: -0.001}
	if got := HeatAdjustment([]Run{{Kind: RunRF, Slope: -0.006}}, c); got != 0 {
		t.Fatalf("expected no adjustment without heater runs, got %v", got)
	}

	runs := []Run{
		{Kind: RunHeater, ElecHeatLoad: 2, Slope: -0.003},
		{Kind: RunHeater, ElecHeatLoad: 4, Slope: -0.004},
		{Kind: RunRF, ElecHeatLoad: 0, Slope: -0.009},
	}
	if got := HeatAdjustment(runs, c); !approxEqual(got, -0.5, 1e-9) {
		t.Fatalf("expected adjustment -0.5, got %v", got)
	}
}

func TestEstimateRun(t *testing.T) {
	c := &Curve{Slope: -0.001}
	const (
		grad   = 16.0
		refGrd = 15.0
		p      = 23.6
	)

	tests := []struct {
		name          string
		modify        func(b *Buffer)
		slope         float64
		wantFallbacks int
		wantInvalidP  int
		wantRF        float64
		wantQ0        float64
		wantValid     bool
	}{
		{
			name:      "steady",
			slope:     -0.005,
			wantRF:    5,
			wantQ0:    CalcQ0(grad, 5, p),
			wantValid: true,
		},
		{
			name:          "zero gradient falls back",
			modify:        func(b *Buffer) { set(b, SignalGradient, 5, 0) },
			slope:         -0.005,
			wantFallbacks: 1,
			wantRF:        5,
			wantQ0:        (9*CalcQ0(grad, 5, p) + CalcQ0(refGrd, 5, p)) / 10,
			wantValid:     true,
		},
		{
			name: "invalid gradients fall back",
			modify: func(b *Buffer) {
				set(b, SignalGradient, 2, Invalid)
				set(b, SignalGradient, 7, 0)
			},
			slope:         -0.005,
			wantFallbacks: 2,
			wantRF:        5,
			wantQ0:        (8*CalcQ0(grad, 5, p) + 2*CalcQ0(refGrd, 5, p)) / 10,
			wantValid:     true,
		},
		{
			name:         "invalid pressure skipped",
			modify:       func(b *Buffer) { set(b, SignalDSPressure, 3, Invalid) },
			slope:        -0.005,
			wantInvalidP: 1,
			wantRF:       5,
			wantQ0:       CalcQ0(grad, 5, p),
			wantValid:    true,
		},
		{
			name: "invalid pressure sample is not a fallback",
			modify: func(b *Buffer) {
				set(b, SignalGradient, 4, Invalid)
				set(b, SignalDSPressure, 4, Invalid)
			},
			slope:        -0.005,
			wantInvalidP: 1,
			wantRF:       5,
			wantQ0:       CalcQ0(grad, 5, p),
			wantValid:    true,
		},
		{
			name:      "zero RF heat load keeps a finite Q0",
			slope:     0,
			wantRF:    0,
			wantQ0:    CalcQ0(grad, 0, p),
			wantValid: false,
		},
		{
			name:      "non-positive RF heat load",
			slope:     0.001,
			wantRF:    -1,
			wantQ0:    CalcQ0(grad, -1, p),
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := synth(t, stage{n: 10, des: 48, grad: grad, pressure: p})
			if tt.modify != nil {
				tt.modify(b)
			}
			run := Run{Index: 0, Kind: RunRF, Start: 0, End: 9, Slope: tt.slope}

			res, err := EstimateRun(b, run, c, refGrd, 0)
			if err != nil {
				t.Fatalf("EstimateRun returned error: %v", err)
			}
			if res.FallbackGradientSamples != tt.wantFallbacks {
				t.Errorf("expected %d gradient fallbacks, got %d", tt.wantFallbacks, res.FallbackGradientSamples)
			}
			if res.InvalidPressureSamples != tt.wantInvalidP {
				t.Errorf("expected %d invalid pressure samples, got %d", tt.wantInvalidP, res.InvalidPressureSamples)
			}
			if !approxEqual(res.RFHeatLoad, tt.wantRF, 1e-9) {
				t.Errorf("expected RF heat load %v, got %v", tt.wantRF, res.RFHeatLoad)
			}
			if !approxEqual(res.Q0/tt.wantQ0, 1, 1e-9) {
				t.Errorf("expected Q0 %v, got %v", tt.wantQ0, res.Q0)
			}
			if res.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %v (%s)", tt.wantValid, res.Valid, res.InvalidReason)
			}
			if !res.Valid && res.InvalidReason == "" {
				t.Errorf("invalid result must carry a reason")
			}
			if !approxEqual(res.AvgPressure, p, 1e-9) {
				t.Errorf("expected average pressure %v, got %v", p, res.AvgPressure)
			}
		})
	}
}

func TestEstimateRunNoPressure(t *testing.T) {
	b := synth(t, stage{n: 3, des: 48, grad: 16})
	for i := 0; i < 3; i++ {
		set(b, SignalDSPressure, i, Invalid)
	}
	_, err := EstimateRun(b, Run{Kind: RunRF, Start: 0, End: 2, Slope: -0.005}, &Curve{Slope: -0.001}, 16, 0)
	if err == nil {
		t.Fatalf("expected an error without any pressure reading")
	}
}
