package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/archive"
	"github.com/charlie0129/q0/pkg/batch"
	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/plot"
	"github.com/charlie0129/q0/pkg/publish"
	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/report"
	"github.com/charlie0129/q0/pkg/store"
	"github.com/charlie0129/q0/pkg/types"
)

// sessionFlags select the data and references of one session.
type sessionFlags struct {
	slac, jlab int
	plan       batch.SessionPlan
}

func (f *sessionFlags) register(cmd *cobra.Command, measurement bool) {
	fl := cmd.Flags()
	fl.IntVar(&f.slac, "cm", 0, "cryomodule number (SLAC)")
	fl.IntVar(&f.jlab, "jlab-cm", 0, "cryomodule number used in PV names (JLab)")
	fl.StringVar(&f.plan.File, "file", "", "read the session from this CSV file instead of the archive")
	fl.StringVar(&f.plan.Start, "start", "", "start of the archive window (YYYY-MM-DD HH:MM:SS, UTC)")
	fl.StringVar(&f.plan.End, "end", "", "end of the archive window (YYYY-MM-DD HH:MM:SS, UTC)")
	fl.IntVar(&f.plan.Interval, "interval", 0, "archive sampling interval in seconds (default from config)")
	fl.Float64Var(&f.plan.RefHeatLoad, "ref-heat", 0, "reference electric heat load, W")
	fl.Float64Var(&f.plan.RefValvePos, "ref-valve", 0, "reference JT valve position, %")
	if measurement {
		fl.IntVar(&f.plan.Cavity, "cavity", 0, "cavity number (1-8)")
		fl.Float64Var(&f.plan.RefGradient, "ref-gradient", 0, "reference gradient, MV/m")
	}
	_ = cmd.MarkFlagRequired("cm")
	_ = cmd.MarkFlagRequired("jlab-cm")
}

func (f *sessionFlags) cryomodule() archive.Cryomodule {
	return archive.Cryomodule{SLAC: f.slac, JLab: f.jlab}
}

func (f *sessionFlags) check(measurement bool) error {
	if f.plan.File == "" && !f.plan.HasWindow() {
		return fmt.Errorf("either --file or both --start and --end are required")
	}
	if measurement && (f.plan.Cavity < 1 || f.plan.Cavity > archive.CavitiesPerCryomodule) {
		return fmt.Errorf("--cavity must be between 1 and %d", archive.CavitiesPerCryomodule)
	}
	return nil
}

// load reads the session data from its file or from the archive.
func (f *sessionFlags) load(ctx context.Context, conf config.Config) (*q0.Buffer, q0.Window, error) {
	// Cavity stays 0 for calibrations.
	return newRunner(conf).Load(ctx, f.cryomodule(), f.plan.Cavity, f.plan)
}

func loadConfig() (config.Config, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, err
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		conf.SetDatabaseURL(url)
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		conf.SetMQTTBroker(broker)
	}
	logrus.WithFields(conf.LogrusFields()).Debug("config loaded")
	return conf, nil
}

func newRunner(conf config.Config) *batch.Runner {
	return &batch.Runner{
		Params:  conf.Params(),
		Fetcher: archive.NewMySampler(conf.MySamplerPath()),
		DataDir: conf.DataDir(),
	}
}

func openStore(ctx context.Context, conf config.Config) (*store.Store, error) {
	url := conf.DatabaseURL()
	if url == "" {
		return nil, pkgerrors.New("no database configured, set databaseURL in the config or DATABASE_URL")
	}
	st, err := store.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// openSinks opens the database and the MQTT publisher as requested. closeAll
// releases whatever was opened.
func openSinks(ctx context.Context, conf config.Config, save, pub bool) (batch.Sinks, func(), error) {
	var sinks batch.Sinks
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if save {
		st, err := openStore(ctx, conf)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, st.Close)
		sinks = append(sinks, st)
	}
	if pub {
		broker := conf.MQTTBroker()
		if broker == "" {
			closeAll()
			return nil, func() {}, pkgerrors.New("no MQTT broker configured, set mqttBroker in the config or MQTT_BROKER")
		}
		p, err := publish.Connect(broker, conf.MQTTTopic())
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, p.Close)
		sinks = append(sinks, p)
	}
	return sinks, closeAll, nil
}

// outputFlags control where session results go besides the terminal.
type outputFlags struct {
	verbose  bool
	jsonPath string
	xlsxPath string
	plotDir  string
	save     bool
	publish  bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.BoolVarP(&o.verbose, "verbose", "v", false, "print fit diagnostics")
	fl.StringVar(&o.jsonPath, "json", "", "write the results as JSON to this file (- for stdout)")
	fl.StringVar(&o.xlsxPath, "xlsx", "", "write the results as an Excel workbook to this file")
	fl.StringVar(&o.plotDir, "plot-dir", "", "write PNG charts to this directory")
	fl.BoolVar(&o.save, "save", false, "save the sessions to the configured database")
	fl.BoolVar(&o.publish, "publish", false, "publish the sessions to the configured MQTT broker")
}

func (o *outputFlags) write(ctx context.Context, cmd *cobra.Command, conf config.Config, sessions ...*q0.Session) error {
	responses := make([]*types.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp := types.NewSessionResponse(s)
		responses = append(responses, resp)
		if o.jsonPath != "-" {
			report.Text(cmd.OutOrStdout(), resp, o.verbose)
		}
	}

	if o.jsonPath != "" {
		var v any = responses
		if len(responses) == 1 {
			v = responses[0]
		}
		if err := writeFile(o.jsonPath, func(fp *os.File) error { return report.JSON(fp, v) }); err != nil {
			return err
		}
	}
	if o.xlsxPath != "" {
		if err := writeFile(o.xlsxPath, func(fp *os.File) error { return report.XLSX(fp, responses) }); err != nil {
			return err
		}
	}
	if o.plotDir != "" {
		if err := writePlots(o.plotDir, sessions); err != nil {
			return err
		}
	}
	if o.save || o.publish {
		sinks, closeSinks, err := openSinks(ctx, conf, o.save, o.publish)
		if err != nil {
			return err
		}
		defer closeSinks()
		for _, s := range sessions {
			if err := sinks.SaveSession(ctx, s); err != nil {
				return err
			}
			logrus.WithField("id", s.ID()).Info("session stored")
		}
	}
	return nil
}

// writeFile creates path and fills it with write. "-" writes to stdout.
func writeFile(path string, write func(*os.File) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	fp, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", path)
	}
	if err := write(fp); err != nil {
		_ = fp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	logrus.WithField("file", path).Info("written")
	return fp.Close()
}

func fileSlug(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func writePlots(dir string, sessions []*q0.Session) error {
	var curve *q0.Curve
	var rf []q0.Run
	for _, s := range sessions {
		if s.NoRuns() {
			continue
		}
		path := filepath.Join(dir, fileSlug(s.Name())+"_level.png")
		if err := writeFile(path, func(fp *os.File) error { return plot.LiquidLevel(fp, s) }); err != nil {
			return err
		}
		if curve == nil {
			curve = s.Curve()
		}
		for _, r := range s.Runs() {
			if r.Kind == q0.RunRF {
				rf = append(rf, r)
			}
		}
	}
	if curve == nil {
		return nil
	}
	path := filepath.Join(dir, "calibration.png")
	return writeFile(path, func(fp *os.File) error {
		return plot.Calibration(fp, "Heater calibration", curve, rf)
	})
}

// writeCurve saves the calibration curve so measurements can use it
// without a database.
func writeCurve(path string, c *q0.Curve) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	logrus.WithField("file", path).Info("calibration curve written")
	return nil
}

func readCurve(path string) (*q0.Curve, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	var c q0.Curve
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal curve %s", path)
	}
	if c.Slope == 0 {
		return nil, pkgerrors.Errorf("%s does not hold a calibration curve", path)
	}
	return &c, nil
}
