package daemon

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/types"
	"github.com/charlie0129/q0/pkg/utils/ptr"
)

// writePlan writes a plan whose only calibration reads a missing file.
func writePlan(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	plan := `cryomodules:
  - slac: 12
    jlab: 3
    calibration:
      file: ` + filepath.Join(dir, "missing.csv") + `
      refHeatLoad: 48
      refValvePos: 40
`
	if err := os.WriteFile(path, []byte(plan), 0644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}
	return path
}

func withPlan(t *testing.T, plan string) {
	t.Helper()
	conf = config.NewFileFromConfig(&config.RawFileConfig{
		BatchPlan: ptr.To(plan),
		DataDir:   ptr.To(t.TempDir()),
	}, filepath.Join(t.TempDir(), "config.json"))
}

func TestCheckBatchPlan(t *testing.T) {
	setup(t)
	if err := checkBatchPlan(); err == nil {
		t.Fatalf("expected an error without a plan")
	}

	withPlan(t, filepath.Join(t.TempDir(), "nope.yaml"))
	if err := checkBatchPlan(); err == nil {
		t.Fatalf("expected an error for a missing plan")
	}

	withPlan(t, writePlan(t))
	if err := checkBatchPlan(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunBatchPlan(t *testing.T) {
	setup(t)
	withPlan(t, writePlan(t))

	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	err := runBatchPlan()
	if err == nil || !strings.Contains(err.Error(), "1 of 1 sessions failed") {
		t.Fatalf("expected one failed session, got %v", err)
	}

	var names []string
	for len(names) < 2 {
		select {
		case ev := <-ch:
			names = append(names, ev.Name)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", names)
		}
	}
	if names[0] != events.SessionFailed || names[1] != events.BatchFinished {
		t.Fatalf("unexpected events %v", names)
	}
}

func TestScheduleHandlers(t *testing.T) {
	router := setup(t)

	if w := do(t, router, http.MethodPut, "/schedule", "@daily"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a plan, got %d", w.Code)
	}

	withPlan(t, writePlan(t))

	if w := do(t, router, http.MethodPut, "/schedule", "not a cron"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid expression, got %d", w.Code)
	}

	if w := do(t, router, http.MethodPut, "/schedule", "@daily"); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if conf.BatchSchedule() != "@daily" {
		t.Fatalf("schedule not stored in config, got %q", conf.BatchSchedule())
	}

	w := do(t, router, http.MethodGet, "/schedule", nil)
	first := decode[types.ScheduleResponse](t, w)
	if first.Schedule != "@daily" || first.NextRun.IsZero() || first.Busy {
		t.Fatalf("unexpected schedule %+v", first)
	}

	if w := do(t, router, http.MethodPost, "/schedule/skip", nil); w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on skip, got %d", w.Code)
	}
	second := decode[types.ScheduleResponse](t, do(t, router, http.MethodGet, "/schedule", nil))
	if !second.NextRun.After(first.NextRun) {
		t.Fatalf("expected skip to move the next run past %s, got %s", first.NextRun, second.NextRun)
	}

	if w := do(t, router, http.MethodPost, "/schedule/postpone", 3600); w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on postpone, got %d", w.Code)
	}
	third := decode[types.ScheduleResponse](t, do(t, router, http.MethodGet, "/schedule", nil))
	if d := third.NextRun.Sub(second.NextRun); d != time.Hour {
		t.Fatalf("expected postpone to move the next run by an hour, moved %s", d)
	}
	if w := do(t, router, http.MethodPost, "/schedule/postpone", 0); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a zero postpone, got %d", w.Code)
	}

	if w := do(t, router, http.MethodPut, "/schedule", ""); w.Code != http.StatusCreated {
		t.Fatalf("expected 201 when disabling, got %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/schedule/skip", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when skipping without a schedule, got %d", w.Code)
	}
}

func TestScheduleRunNow(t *testing.T) {
	router := setup(t)

	if w := do(t, router, http.MethodPost, "/schedule/run", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a plan, got %d", w.Code)
	}

	withPlan(t, writePlan(t))
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	if w := do(t, router, http.MethodPost, "/schedule/run", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Name != events.BatchFailed {
				continue
			}
			payload, err := events.DecodeAs[events.BatchEvent](ev)
			if err != nil {
				t.Fatalf("failed to decode event: %v", err)
			}
			if !strings.Contains(payload.Message, "sessions failed") {
				t.Fatalf("unexpected message %q", payload.Message)
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s", events.BatchFailed)
		}
	}
}
