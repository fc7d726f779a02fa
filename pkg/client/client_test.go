package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/types"
)

// serve runs h on a unix socket for the duration of the test.
func serve(t *testing.T, h http.Handler) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "q0.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return sock
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.GetVersion(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"version":"v1.2.3","gitCommit":"abc"}`)
	})
	mux.HandleFunc("/calibrations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		if len(b) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"cal-1","name":"CM12","kind":"Calibration","noRuns":true}`)
	})
	mux.HandleFunc("/calibrations/unknown", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `"unknown calibration"`)
	})
	mux.HandleFunc("/min-run-duration", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != "1200" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `"ok"`)
	})
	c := NewClient(serve(t, mux))

	v, err := c.GetVersion()
	if err != nil || v.Version != "v1.2.3" {
		t.Fatalf("unexpected version %+v, err %v", v, err)
	}

	s, err := c.SubmitCalibration(&types.SessionRequest{Name: "CM12"})
	if err != nil {
		t.Fatalf("SubmitCalibration returned error: %v", err)
	}
	if s.ID != "cal-1" || !s.NoRuns {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := c.GetCalibration("unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := c.SetMinRunDuration(1200); err != nil {
		t.Fatalf("SetMinRunDuration returned error: %v", err)
	}
}

func TestSchedule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"plan":"/etc/q0/plan.yaml","schedule":"@daily","nextRun":"2026-10-19T00:00:00Z","busy":false}`)
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			if string(b) != `"@weekly"` {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `"ok"`)
		}
	})
	mux.HandleFunc("/schedule/skip", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `"no active schedule to skip"`)
	})
	c := NewClient(serve(t, mux))

	s, err := c.GetSchedule()
	if err != nil {
		t.Fatalf("GetSchedule returned error: %v", err)
	}
	if s.Schedule != "@daily" || s.NextRun.IsZero() {
		t.Fatalf("unexpected schedule %+v", s)
	}

	if _, err := c.SetSchedule("@weekly"); err != nil {
		t.Fatalf("SetSchedule returned error: %v", err)
	}
	if _, err := c.SkipSchedule(); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected a 409 error, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:session.processed\ndata:{\"id\":\"abc\",\"runs\":3}\n\n")
		fmt.Fprint(w, "event:session.failed\ndata:{\"name\":\"CM13\",\"message\":\"boom\"}\n\n")
	})
	c := NewClient(serve(t, mux))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Name != events.SessionProcessed || got[1].Name != events.SessionFailed {
		t.Fatalf("unexpected event names %q, %q", got[0].Name, got[1].Name)
	}
	p, err := events.DecodeAs[events.SessionEvent](got[0])
	if err != nil || p.ID != "abc" || p.Runs != 3 {
		t.Fatalf("unexpected payload %+v, err %v", p, err)
	}
}
