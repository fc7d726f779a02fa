package q0

import (
	"math"
	"testing"
	"time"
)

var testStart = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

// stage is a stretch of constant operating conditions in a synthetic stream.
type stage struct {
	n        int     // samples, 1 s apart
	des      float64 // heater setpoint, W
	slope    float64 // level drain rate, %/s
	grad     float64 // MV/m
	pressure float64 // torr
}

// synth builds a buffer out of stages. The level restarts at 99 % at the
// beginning of every stage, the valve sits at 50 % and the heater readback
// matches its setpoint.
func synth(t *testing.T, stages ...stage) *Buffer {
	t.Helper()
	b := NewBuffer(SignalDSLevel, SignalValvePos, SignalElecHeatDes, SignalElecHeatAct, SignalGradient, SignalDSPressure)
	i := 0
	for _, st := range stages {
		pressure := st.pressure
		if pressure == 0 {
			pressure = 23.6
		}
		for k := 0; k < st.n; k++ {
			err := b.Append(testStart.Add(time.Duration(i)*time.Second), map[Signal]float64{
				SignalDSLevel:     99 + st.slope*float64(k),
				SignalValvePos:    50,
				SignalElecHeatDes: st.des,
				SignalElecHeatAct: st.des,
				SignalGradient:    st.grad,
				SignalDSPressure:  pressure,
			})
			if err != nil {
				t.Fatalf("failed to append sample %d: %v", i, err)
			}
			i++
		}
	}
	return b
}

// set overwrites one reading of a buffer built by synth.
func set(b *Buffer, s Signal, i int, v float64) {
	b.cols[s][i] = v
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func testRefs() References {
	return References{HeatLoad: 48, ValvePos: 50, Gradient: 16}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
