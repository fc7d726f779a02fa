package plot

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/charlie0129/q0/pkg/q0"
)

func processedCalibration(t *testing.T) *q0.Session {
	t.Helper()
	start := time.Date(2019, 3, 28, 14, 16, 0, 0, time.UTC)
	b := q0.NewBuffer(q0.SignalDSLevel, q0.SignalValvePos, q0.SignalElecHeatDes, q0.SignalElecHeatAct)
	i := 0
	for _, st := range []struct{ des, slope float64 }{{50, -0.001}, {52, -0.003}, {54, -0.005}} {
		for k := 0; k < 1200; k++ {
			_ = b.Append(start.Add(time.Duration(i)*time.Second), map[q0.Signal]float64{
				q0.SignalDSLevel:     99 + st.slope*float64(k),
				q0.SignalValvePos:    40,
				q0.SignalElecHeatDes: st.des,
				q0.SignalElecHeatAct: st.des,
			})
			i++
		}
	}
	w := q0.Window{Start: start, End: b.Times()[b.Len()-1], Interval: time.Second}
	s, err := q0.NewCalibrationSession("CM12 calibration", w, q0.References{HeatLoad: 48, ValvePos: 40}, q0.DefaultParams(), b)
	if err != nil {
		t.Fatalf("NewCalibrationSession returned error: %v", err)
	}
	if err := s.Process(); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	return s
}

func assertPNG(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	cfg, err := png.DecodeConfig(buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if cfg.Width != width || cfg.Height != height {
		t.Fatalf("expected %dx%d, got %dx%d", width, height, cfg.Width, cfg.Height)
	}
}

func TestLiquidLevel(t *testing.T) {
	s := processedCalibration(t)
	var buf bytes.Buffer
	if err := LiquidLevel(&buf, s); err != nil {
		t.Fatalf("LiquidLevel returned error: %v", err)
	}
	assertPNG(t, &buf)
}

func TestCalibration(t *testing.T) {
	s := processedCalibration(t)
	rf := []q0.Run{{Kind: q0.RunRF, Slope: -0.006}}

	var buf bytes.Buffer
	if err := Calibration(&buf, s.Name(), s.Curve(), rf); err != nil {
		t.Fatalf("Calibration returned error: %v", err)
	}
	assertPNG(t, &buf)

	if err := Calibration(&buf, "none", nil, nil); !errors.Is(err, q0.ErrInputData) {
		t.Fatalf("expected ErrInputData without a curve, got %v", err)
	}
}
