package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/charlie0129/q0/pkg/q0"
)

const mySamplerOutput = `Date                 LVL   VALVE  GRAD  H1DES H2DES H1ACT H2ACT
2019-03-28 14:16:00  92.5  40     16    24    24    24.1  23.9
2019-03-28 14:16:01  92.4  40     16    24    24    24.1  23.9
`

func stubRunCommand(t *testing.T, out []byte, err error) *[]string {
	t.Helper()
	var called []string
	orig := runCommand
	runCommand = func(_ context.Context, name string, args ...string) ([]byte, error) {
		called = append([]string{name}, args...)
		return out, err
	}
	t.Cleanup(func() { runCommand = orig })
	return &called
}

func testWindow() q0.Window {
	start := time.Date(2019, 3, 28, 14, 16, 0, 0, time.UTC)
	return q0.Window{Start: start, End: start.Add(2 * time.Second), Interval: time.Second}
}

func TestMySamplerArgs(t *testing.T) {
	m := NewMySampler("")
	got := m.Args(testWindow(), []string{"A", "B"})
	want := []string{"-b", "2019-03-28 14:16:00", "-s", "1s", "-n2", "A", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMySamplerFetch(t *testing.T) {
	called := stubRunCommand(t, []byte(mySamplerOutput), nil)

	records, err := NewMySampler("/opt/bin/mySampler").Fetch(context.Background(), testWindow(), []string{"LVL"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if (*called)[0] != "/opt/bin/mySampler" {
		t.Fatalf("unexpected command %v", *called)
	}
	if len(records) != 3 || records[1][0] != "2019-03-28-14:16:00" || len(records[1]) != 8 {
		t.Fatalf("unexpected records %v", records)
	}

	stubRunCommand(t, nil, errors.New("boom"))
	if _, err := NewMySampler("").Fetch(context.Background(), testWindow(), nil); err == nil {
		t.Fatalf("expected an error when mySampler fails")
	}

	w := testWindow()
	w.End = w.Start
	if _, err := NewMySampler("").Fetch(context.Background(), w, nil); err == nil {
		t.Fatalf("expected an error for an empty window")
	}
}

func TestAcquireCaches(t *testing.T) {
	stubRunCommand(t, []byte(mySamplerOutput), nil)
	cache := filepath.Join(t.TempDir(), "calib", "cm12", "data.csv")

	b, err := Acquire(context.Background(), NewMySampler(""), testColumns(), testWindow(), cache)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", b.Len())
	}
	if _, err := os.Stat(cache); err != nil {
		t.Fatalf("expected the cache file to be written: %v", err)
	}

	// second call must not touch the archiver
	stubRunCommand(t, nil, errors.New("archiver must not be called"))
	again, err := Acquire(context.Background(), NewMySampler(""), testColumns(), testWindow(), cache)
	if err != nil {
		t.Fatalf("Acquire from cache returned error: %v", err)
	}
	assertColumn(t, "elecHeatDes", again.Column(q0.SignalElecHeatDes), b.Column(q0.SignalElecHeatDes))
}

func TestCacheFileName(t *testing.T) {
	cm := Cryomodule{SLAC: 12, JLab: 2}
	got := CacheFileName("data", cm, 3, testWindow())
	want := filepath.Join("data", "q0meas", "cm12", "q0meas_CM12_cav3_20190328-141600_2pts_1s.csv")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
