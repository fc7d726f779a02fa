package batch

import (
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/charlie0129/q0/pkg/archive"
	"github.com/charlie0129/q0/pkg/q0"
)

// Plan lists the sessions to process, grouped by cryomodule.
type Plan struct {
	// DataDir is where fetched data is cached. Overrides the configured
	// data directory when set.
	DataDir     string           `yaml:"dataDir"`
	Cryomodules []CryomodulePlan `yaml:"cryomodules"`
}

// CryomodulePlan is one calibration and the cavity measurements that use it.
type CryomodulePlan struct {
	archive.Cryomodule `yaml:",inline"`
	Calibration        SessionPlan   `yaml:"calibration"`
	Measurements       []SessionPlan `yaml:"measurements"`
}

// SessionPlan describes where to find the data of one session and its
// references. With File set, the window may be left out and is taken from
// the file.
type SessionPlan struct {
	Cavity int    `yaml:"cavity"`
	File   string `yaml:"file"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	// Interval is the archiver sampling interval in seconds.
	Interval int `yaml:"interval"`

	RefHeatLoad float64 `yaml:"refHeatLoad"`
	RefValvePos float64 `yaml:"refValvePos"`
	RefGradient float64 `yaml:"refGradient"`
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, pkgerrors.Errorf("cannot parse time %q, use YYYY-MM-DD HH:MM:SS", s)
}

// HasWindow reports whether the plan gives an explicit window.
func (s SessionPlan) HasWindow() bool {
	return s.Start != "" && s.End != ""
}

// Window returns the acquisition window of the session.
func (s SessionPlan) Window(defaultInterval time.Duration) (q0.Window, error) {
	start, err := parseTime(s.Start)
	if err != nil {
		return q0.Window{}, pkgerrors.Wrap(err, "start")
	}
	end, err := parseTime(s.End)
	if err != nil {
		return q0.Window{}, pkgerrors.Wrap(err, "end")
	}
	if !end.After(start) {
		return q0.Window{}, pkgerrors.Errorf("end %s is not after start %s", s.End, s.Start)
	}

	interval := defaultInterval
	if s.Interval > 0 {
		interval = time.Duration(s.Interval) * time.Second
	}
	return q0.Window{Start: start, End: end, Interval: interval}, nil
}

func (s SessionPlan) References() q0.References {
	return q0.References{
		HeatLoad: s.RefHeatLoad,
		ValvePos: s.RefValvePos,
		Gradient: s.RefGradient,
	}
}

// LoadPlan reads a YAML plan from path.
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read plan %s", path)
	}
	plan, err := ParsePlan(b)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid plan %s", path)
	}
	return plan, nil
}

// ParsePlan decodes and checks a YAML plan.
func ParsePlan(b []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.UnmarshalStrict(b, &plan); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal plan")
	}

	if len(plan.Cryomodules) == 0 {
		return nil, pkgerrors.New("plan lists no cryomodules")
	}
	for _, cm := range plan.Cryomodules {
		if cm.SLAC <= 0 || cm.JLab <= 0 {
			return nil, pkgerrors.Errorf("cryomodule needs positive slac and jlab numbers, got %d/%d", cm.SLAC, cm.JLab)
		}
		if err := cm.Calibration.check(); err != nil {
			return nil, pkgerrors.Wrapf(err, "%s calibration", cm.Name())
		}
		for _, m := range cm.Measurements {
			if m.Cavity < 1 || m.Cavity > archive.CavitiesPerCryomodule {
				return nil, pkgerrors.Errorf("%s: cavity must be between 1 and %d, got %d", cm.Name(), archive.CavitiesPerCryomodule, m.Cavity)
			}
			if err := m.check(); err != nil {
				return nil, pkgerrors.Wrapf(err, "%s cavity %d", cm.Name(), m.Cavity)
			}
		}
	}
	return &plan, nil
}

func (s SessionPlan) check() error {
	if s.File == "" && !s.HasWindow() {
		return pkgerrors.New("needs either a file or a start and end time")
	}
	if s.Interval < 0 {
		return pkgerrors.Errorf("interval must not be negative, got %d", s.Interval)
	}
	return nil
}
