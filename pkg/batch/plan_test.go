package batch

import (
	"strings"
	"testing"
	"time"
)

const testPlan = `
dataDir: /tmp/q0
cryomodules:
  - slac: 12
    jlab: 2
    calibration:
      start: 2019-03-28 14:16:00
      end: 2019-03-28 16:16:00
      refHeatLoad: 48
      refValvePos: 40
    measurements:
      - cavity: 3
        file: cav3.csv
        refHeatLoad: 48
        refValvePos: 40
        refGradient: 16
        interval: 2
`

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan([]byte(testPlan))
	if err != nil {
		t.Fatalf("ParsePlan returned error: %v", err)
	}
	if plan.DataDir != "/tmp/q0" || len(plan.Cryomodules) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	cm := plan.Cryomodules[0]
	if cm.SLAC != 12 || cm.JLab != 2 {
		t.Fatalf("unexpected cryomodule %+v", cm.Cryomodule)
	}

	w, err := cm.Calibration.Window(time.Second)
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if w.NumPoints() != 7200 {
		t.Fatalf("expected 7200 points, got %d", w.NumPoints())
	}

	m := cm.Measurements[0]
	if m.References().Gradient != 16 || m.HasWindow() {
		t.Fatalf("unexpected measurement %+v", m)
	}
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name string
		plan string
		want string
	}{
		{name: "empty", plan: "", want: "no cryomodules"},
		{name: "unknown field", plan: "cryomodule: []", want: "unmarshal"},
		{
			name: "missing numbers",
			plan: "cryomodules:\n  - calibration: {file: a.csv}\n",
			want: "slac and jlab",
		},
		{
			name: "no data source",
			plan: "cryomodules:\n  - {slac: 1, jlab: 1, calibration: {refHeatLoad: 48}}\n",
			want: "file or a start",
		},
		{
			name: "bad cavity",
			plan: "cryomodules:\n  - slac: 1\n    jlab: 1\n    calibration: {file: a.csv}\n    measurements: [{cavity: 9, file: b.csv}]\n",
			want: "cavity must be",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.plan))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSessionPlanWindow(t *testing.T) {
	tests := []struct {
		start, end string
		ok         bool
	}{
		{"2019-03-28 14:16:00", "2019-03-28 15:16:00", true},
		{"2019-03-28 14:16", "2019-03-28 15:16", true},
		{"2019-03-28T14:16:00Z", "2019-03-28T15:16:00Z", true},
		{"2019-03-28 15:16:00", "2019-03-28 14:16:00", false},
		{"yesterday", "2019-03-28 14:16:00", false},
	}
	for _, tt := range tests {
		_, err := SessionPlan{Start: tt.start, End: tt.end}.Window(time.Second)
		if (err == nil) != tt.ok {
			t.Errorf("%s - %s: expected ok=%v, got %v", tt.start, tt.end, tt.ok, err)
		}
	}
}
