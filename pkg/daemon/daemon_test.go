package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
)

var start = time.Date(2019, 3, 28, 14, 16, 0, 0, time.UTC)

type step struct {
	des, slope, grad float64
}

func request(t *testing.T, name string, steps ...step) *types.SessionRequest {
	t.Helper()
	b := q0.NewBuffer(q0.SignalDSLevel, q0.SignalValvePos, q0.SignalElecHeatDes, q0.SignalElecHeatAct,
		q0.SignalGradient, q0.SignalDSPressure)
	i := 0
	for _, st := range steps {
		for k := 0; k < 1200; k++ {
			err := b.Append(start.Add(time.Duration(i)*time.Second), map[q0.Signal]float64{
				q0.SignalDSLevel:     99 + st.slope*float64(k),
				q0.SignalValvePos:    50,
				q0.SignalElecHeatDes: st.des,
				q0.SignalElecHeatAct: st.des,
				q0.SignalGradient:    st.grad,
				q0.SignalDSPressure:  23.6,
			})
			if err != nil {
				t.Fatalf("failed to append sample: %v", err)
			}
			i++
		}
	}
	times := b.Times()
	w := q0.Window{Start: times[0], End: times[len(times)-1], Interval: time.Second}
	return types.NewSessionRequest(name, w, q0.References{HeatLoad: 48, ValvePos: 50, Gradient: 16}, b)
}

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	conf = config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "config.json"))
	sseHub = events.NewEventHub()
	reg = newRegistry()
	db = nil
	pub = nil
	sched = newBatchScheduler()
	t.Cleanup(sched.Stop)
	return setupRoutes()
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCalibrationThenMeasurement(t *testing.T) {
	router := setup(t)

	w := do(t, router, http.MethodPost, "/calibrations",
		request(t, "CM12 calibration", step{50, -0.001, 0}, step{52, -0.003, 0}, step{54, -0.005, 0}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	cal := decode[types.SessionResponse](t, w)
	if cal.Curve == nil || len(cal.Runs) != 3 {
		t.Fatalf("expected a curve from 3 runs, got %+v", cal)
	}

	w = do(t, router, http.MethodGet, "/calibrations/"+cal.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req := request(t, "CM12 cavity 3", step{48, -0.006, 16})
	req.CalibrationID = cal.ID
	w = do(t, router, http.MethodPost, "/measurements", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	meas := decode[types.SessionResponse](t, w)
	if len(meas.Results) != 1 || !meas.Results[0].Valid {
		t.Fatalf("expected one valid result, got %+v", meas.Results)
	}
	if meas.Results[0].RFHeatLoad < 5.99 || meas.Results[0].RFHeatLoad > 6.01 {
		t.Fatalf("expected 6 W RF heat load, got %v", meas.Results[0].RFHeatLoad)
	}

	w = do(t, router, http.MethodGet, "/measurements/"+meas.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/measurements/"+cal.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("a calibration is not a measurement, got %d", w.Code)
	}
}

func TestSubmitErrors(t *testing.T) {
	router := setup(t)

	req := request(t, "CM12 cavity 3", step{48, -0.006, 16})
	req.CalibrationID = "does-not-exist"

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown calibration", "/measurements", req, http.StatusNotFound},
		{"bad body", "/calibrations", "not a session", http.StatusBadRequest},
		{"missing signals", "/calibrations", &types.SessionRequest{Name: "empty"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := do(t, router, http.MethodGet, "/calibrations/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestConfigHandlers(t *testing.T) {
	router := setup(t)

	w := do(t, router, http.MethodPut, "/min-run-duration", 30)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a short duration, got %d", w.Code)
	}
	w = do(t, router, http.MethodPut, "/min-run-duration", 1200)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPut, "/check-upstream-level", true)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/config", nil)
	fc := decode[config.RawFileConfig](t, w)
	if fc.MinRunDurationSeconds == nil || *fc.MinRunDurationSeconds != 1200 {
		t.Fatalf("expected 1200 s minimum run duration, got %v", fc.MinRunDurationSeconds)
	}
	if fc.CheckUpstreamLevel == nil || !*fc.CheckUpstreamLevel {
		t.Fatalf("expected upstream level check on")
	}

	w = do(t, router, http.MethodGet, "/version", nil)
	if v := decode[types.VersionResponse](t, w); v.Version == "" {
		t.Fatalf("expected a version")
	}
}

func TestCurvesSurviveRestart(t *testing.T) {
	router := setup(t)
	path := filepath.Join(t.TempDir(), "data", "curves.json")
	if err := reg.load(path); err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	w := do(t, router, http.MethodPost, "/calibrations",
		request(t, "CM12 calibration", step{50, -0.001, 0}, step{52, -0.003, 0}, step{54, -0.005, 0}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode[types.SessionResponse](t, w).ID

	reg = newRegistry()
	if err := reg.load(path); err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	w = do(t, router, http.MethodGet, "/calibrations/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after reload, got %d", w.Code)
	}
	if got := decode[types.SessionResponse](t, w); got.Curve == nil || got.Curve.CalibrationID != id {
		t.Fatalf("expected the stored curve, got %+v", got)
	}
}

func TestEvents(t *testing.T) {
	router := setup(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if sseHub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", sseHub.Subscribers())
	}
	sseHub.Publish(events.SessionProcessed, events.SessionEvent{ID: "abc", Runs: 2})

	sc := bufio.NewScanner(resp.Body)
	var gotEvent, gotData bool
	for sc.Scan() && !(gotEvent && gotData) {
		line := sc.Text()
		if line == "event:"+events.SessionProcessed {
			gotEvent = true
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, `"id":"abc"`) {
			gotData = true
		}
	}
	if !gotEvent || !gotData {
		t.Fatalf("did not receive the event (event=%v data=%v): %v", gotEvent, gotData, sc.Err())
	}
}

type recordingSink struct {
	ids []string
}

func (r *recordingSink) SaveSession(_ context.Context, s *q0.Session) error {
	r.ids = append(r.ids, s.ID())
	return nil
}

func TestSessionsReachSinks(t *testing.T) {
	router := setup(t)
	rec := &recordingSink{}
	pub = rec

	w := do(t, router, http.MethodPost, "/calibrations",
		request(t, "CM12 calibration", step{50, -0.001, 0}, step{52, -0.003, 0}, step{54, -0.005, 0}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	cal := decode[types.SessionResponse](t, w)
	if len(rec.ids) != 1 || rec.ids[0] != cal.ID {
		t.Fatalf("expected the calibration to be published, got %v", rec.ids)
	}
	if n := len(sinks()); n != 1 {
		t.Fatalf("expected one sink without a database, got %d", n)
	}
}

func TestPublicRoutes(t *testing.T) {
	setup(t)
	router := setupPublicRoutes([]string{"https://dash.example"})

	w := do(t, router, http.MethodGet, "/api/v1/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// changing the daemon is not possible over TCP
	w = do(t, router, http.MethodPost, "/api/v1/calibrations", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a write route, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/version", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("expected the origin to be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an unknown origin, got %d", rec.Code)
	}
}
