package archive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/q0"
)

// Fetcher retrieves archived data for a window. The first record is the
// header, with a Date column followed by one column per PV.
type Fetcher interface {
	Fetch(ctx context.Context, w q0.Window, pvs []string) ([][]string, error)
}

// runCommand runs an external program and returns its stdout. Replaced in
// tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// MySampler fetches data with the JLab mySampler tool.
type MySampler struct {
	Path string
}

var _ Fetcher = &MySampler{}

func NewMySampler(path string) *MySampler {
	if path == "" {
		path = "mySampler"
	}
	return &MySampler{Path: path}
}

// Args returns the mySampler arguments for a window:
//
//	-b "2006-01-02 15:04:05" -s 1s -n<points> <pv>...
func (m *MySampler) Args(w q0.Window, pvs []string) []string {
	args := []string{
		"-b", w.Start.UTC().Format(timeLayout),
		"-s", fmt.Sprintf("%ds", int64(w.Interval/time.Second)),
		fmt.Sprintf("-n%d", w.NumPoints()),
	}
	return append(args, pvs...)
}

func (m *MySampler) Fetch(ctx context.Context, w q0.Window, pvs []string) ([][]string, error) {
	if w.Interval < time.Second {
		return nil, pkgerrors.Errorf("mySampler needs an interval of at least 1s, got %s", w.Interval)
	}
	if w.NumPoints() <= 0 {
		return nil, pkgerrors.Errorf("window %s - %s holds no samples", w.Start, w.End)
	}

	args := m.Args(w, pvs)
	logrus.WithFields(logrus.Fields{
		"start":  w.Start,
		"points": w.NumPoints(),
		"pvs":    len(pvs),
	}).Info("getting data from the archive")

	out, err := runCommand(ctx, m.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if pkgerrors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, pkgerrors.Wrapf(err, "mySampler failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, pkgerrors.Wrap(err, "mySampler failed")
	}

	return ParseMySampler(out)
}

var sampleDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2})`)

// ParseMySampler splits whitespace separated mySampler output into
// records, joining date and time so each timestamp is one field.
func ParseMySampler(out []byte) ([][]string, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, pkgerrors.Wrap(q0.ErrInputData, "mySampler returned no data")
	}

	records := [][]string{strings.Fields(lines[0])}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !sampleDate.MatchString(line) {
			logrus.WithField("row", line).Warn("could not reformat date")
		}
		records = append(records, strings.Fields(sampleDate.ReplaceAllString(line, "$1-$2")))
	}
	return records, nil
}

// Acquire returns the data of a session. A collapsed CSV at cachePath is
// read when it exists; otherwise the data is fetched and the cache written.
func Acquire(ctx context.Context, f Fetcher, cols Columns, w q0.Window, cachePath string) (*q0.Buffer, error) {
	if cachePath != "" {
		if fp, err := os.Open(cachePath); err == nil {
			defer fp.Close()
			logrus.WithField("file", cachePath).Debug("using cached data")
			return ReadCSV(fp, cols)
		} else if !os.IsNotExist(err) {
			return nil, pkgerrors.Wrapf(err, "failed to open %s", cachePath)
		}
	}

	records, err := f.Fetch(ctx, w, cols.PVs())
	if err != nil {
		return nil, err
	}
	b, err := parseRecords(records, cols)
	if err != nil {
		return nil, err
	}

	if cachePath == "" {
		return b, nil
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create %s", filepath.Dir(cachePath))
	}
	fp, err := os.Create(cachePath)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create %s", cachePath)
	}
	defer func() {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", cachePath)
		}
	}()
	if err := WriteCSV(fp, b, cols); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to write %s", cachePath)
	}
	return b, nil
}

// CacheFileName returns where the data of a session is cached under
// dataDir. cavity is 0 for calibrations.
func CacheFileName(dataDir string, cm Cryomodule, cavity int, w q0.Window) string {
	kind, prefix := "calib", "calib_"+cm.Name()
	if cavity > 0 {
		kind, prefix = "q0meas", fmt.Sprintf("q0meas_%s_cav%d", cm.Name(), cavity)
	}
	name := fmt.Sprintf("%s_%s_%dpts_%ds.csv",
		prefix, w.Start.UTC().Format("20060102-150405"), w.NumPoints(), int64(w.Interval/time.Second))
	return filepath.Join(dataDir, kind, strings.ToLower(cm.Name()), name)
}
