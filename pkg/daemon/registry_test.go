package daemon

import (
	"fmt"
	"testing"
	"time"

	"github.com/charlie0129/q0/pkg/q0"
)

func emptySession(t *testing.T, name string) *q0.Session {
	t.Helper()
	b := q0.NewBuffer(q0.SignalDSLevel, q0.SignalValvePos, q0.SignalElecHeatDes, q0.SignalElecHeatAct)
	w := q0.Window{Start: start, End: start.Add(time.Hour), Interval: time.Second}
	s, err := q0.NewCalibrationSession(name, w, q0.References{HeatLoad: 48, ValvePos: 50}, q0.DefaultParams(), b)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

func TestRegistryEvictsOldest(t *testing.T) {
	r := newRegistry()
	r.limit = 3

	var ids []string
	for i := 0; i < 5; i++ {
		s := emptySession(t, fmt.Sprintf("CM%02d calibration", i))
		r.add(s)
		ids = append(ids, s.ID())
	}

	if len(r.sessions) != 3 || len(r.order) != 3 {
		t.Fatalf("expected 3 sessions kept, got %d (order %d)", len(r.sessions), len(r.order))
	}
	for i, id := range ids {
		got, ok := r.session(id)
		if want := i >= 2; ok != want {
			t.Fatalf("session %d: expected kept=%v, got %v", i, want, ok)
		}
		if ok && got.ID != id {
			t.Fatalf("session %d: expected id %s, got %s", i, id, got.ID)
		}
	}
}

func TestRegistryReAddKeepsOneEntry(t *testing.T) {
	r := newRegistry()
	r.limit = 2

	a := emptySession(t, "CM01 calibration")
	b := emptySession(t, "CM02 calibration")
	r.add(a)
	r.add(a)
	r.add(b)

	if len(r.order) != 2 {
		t.Fatalf("expected 2 entries, got %v", r.order)
	}
	if _, ok := r.session(a.ID()); !ok {
		t.Fatalf("re-added session was evicted")
	}
}
