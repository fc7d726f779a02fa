package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/archive"
	"github.com/charlie0129/q0/pkg/batch"
	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/report"
)

func NewCalibrateCommand() *cobra.Command {
	var (
		sf       sessionFlags
		out      outputFlags
		curveOut string
	)

	cmd := &cobra.Command{
		Use:     "calibrate",
		Short:   "Fit the heater calibration of a cryomodule",
		GroupID: gAnalysis,
		Long: `Fit the heater calibration of a cryomodule.

The session is split into steady-state heater runs. The drain rate of the
downstream liquid level in every run is fit against the electric heat load,
giving the calibration curve used by 'q0 measure'.`,
		Example: `  q0 calibrate --cm 12 --jlab-cm 2 --start "2019-03-28 14:16:00" --end "2019-03-28 19:16:00" --ref-heat 48 --ref-valve 40 --curve-out cm12.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sf.check(false); err != nil {
				return err
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			buf, w, err := sf.load(cmd.Context(), conf)
			if err != nil {
				return fmt.Errorf("failed to load calibration data: %w", err)
			}
			s, err := q0.NewCalibrationSession(sf.cryomodule().Name()+" calibration", w, sf.plan.References(), conf.Params(), buf)
			if err != nil {
				return err
			}
			if err := s.Process(); err != nil {
				return err
			}

			if err := out.write(cmd.Context(), cmd, conf, s); err != nil {
				return err
			}
			if curveOut != "" && s.Curve() != nil {
				return writeCurve(curveOut, s.Curve())
			}
			return nil
		},
	}

	sf.register(cmd, false)
	out.register(cmd)
	cmd.Flags().StringVar(&curveOut, "curve-out", "", "write the calibration curve to this JSON file")

	return cmd
}

func NewMeasureCommand() *cobra.Command {
	var (
		sf            sessionFlags
		out           outputFlags
		curvePath     string
		calibrationID string
	)

	cmd := &cobra.Command{
		Use:     "measure",
		Short:   "Measure the Q0 of a cavity against a calibration",
		GroupID: gAnalysis,
		Long: `Measure the Q0 of a cavity against a calibration.

The calibration is read from a curve file written by 'q0 calibrate --curve-out'
or, with --calibration-id, from the configured database.`,
		Example: `  q0 measure --cm 12 --jlab-cm 2 --cavity 3 --file cav3.csv --ref-heat 48 --ref-valve 40 --ref-gradient 16 --curve cm12.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sf.check(true); err != nil {
				return err
			}
			if (curvePath == "") == (calibrationID == "") {
				return fmt.Errorf("exactly one of --curve and --calibration-id is required")
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			var curve *q0.Curve
			if curvePath != "" {
				curve, err = readCurve(curvePath)
			} else {
				curve, err = loadStoredCurve(cmd, conf, calibrationID)
			}
			if err != nil {
				return err
			}

			buf, w, err := sf.load(cmd.Context(), conf)
			if err != nil {
				return fmt.Errorf("failed to load measurement data: %w", err)
			}
			name := fmt.Sprintf("%s cavity %d", sf.cryomodule().Name(), sf.plan.Cavity)
			s, err := q0.NewMeasurementSession(name, w, sf.plan.References(), conf.Params(), buf, curve)
			if err != nil {
				return err
			}
			if err := s.Process(); err != nil {
				return err
			}
			return out.write(cmd.Context(), cmd, conf, s)
		},
	}

	sf.register(cmd, true)
	out.register(cmd)
	cmd.Flags().StringVar(&curvePath, "curve", "", "calibration curve JSON file")
	cmd.Flags().StringVar(&calibrationID, "calibration-id", "", "ID of a calibration stored in the database")

	return cmd
}

func NewBatchCommand() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:     "batch [plan.yaml]",
		Short:   "Process a plan of calibrations and measurements",
		GroupID: gAnalysis,
		Long: `Process a plan of calibrations and measurements.

The YAML plan lists cryomodules, each with one calibration and any number of
cavity measurements. A failing session never stops the others; the
measurements of a cryomodule are skipped when its calibration has no curve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := batch.LoadPlan(args[0])
			if err != nil {
				return err
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			// the runner saves sessions as they are processed
			runner := newRunner(conf)
			if out.save || out.publish {
				sinks, closeSinks, err := openSinks(cmd.Context(), conf, out.save, out.publish)
				if err != nil {
					return err
				}
				defer closeSinks()
				runner.Sink = sinks
				out.save, out.publish = false, false
			}

			res, err := runner.Run(cmd.Context(), plan)
			if err != nil {
				return err
			}

			var sessions []*q0.Session
			for _, cm := range res.Cryomodules {
				cmd.Println(report.Bold("%s", cm.Cryomodule.Name()))
				for _, sr := range append([]batch.SessionResult{cm.Calibration}, cm.Measurements...) {
					cmd.Printf("  %-28s %s %s\n", sr.Name, statusText(sr.Status), sr.Error)
					if sr.Session != nil && !sr.Session.NoRuns() {
						sessions = append(sessions, sr.Session)
					}
				}
			}
			cmd.Println()

			if err := out.write(cmd.Context(), cmd, conf, sessions...); err != nil {
				return err
			}
			if n := res.Failed(); n > 0 {
				return fmt.Errorf("%d sessions failed or were skipped", n)
			}
			return nil
		},
	}

	out.register(cmd)

	return cmd
}

func statusText(s batch.Status) string {
	switch s {
	case batch.StatusOK:
		return color.New(color.FgGreen).Sprint(s)
	case batch.StatusNoRuns, batch.StatusSkipped:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return color.New(color.FgRed).Sprint(s)
	}
}

func NewFetchCommand() *cobra.Command {
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:     "fetch",
		Short:   "Fetch a session from the archive into the data directory",
		GroupID: gAdvanced,
		Long: `Fetch a session from the archive into the data directory without processing it.

Later runs over the same window read the cached file instead of calling the archiver.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !sf.plan.HasWindow() {
				return fmt.Errorf("--start and --end are required")
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			w, err := sf.plan.Window(conf.SampleInterval())
			if err != nil {
				return err
			}

			cm := sf.cryomodule()
			path := archive.CacheFileName(conf.DataDir(), cm, sf.plan.Cavity, w)
			buf, err := archive.Acquire(cmd.Context(), archive.NewMySampler(conf.MySamplerPath()), cm.Columns(sf.plan.Cavity), w, path)
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"file":    path,
				"samples": buf.Len(),
			}).Info("session data cached")
			cmd.Println(path)
			return nil
		},
	}

	sf.register(cmd, true)
	_ = cmd.Flags().MarkHidden("ref-heat")
	_ = cmd.Flags().MarkHidden("ref-valve")
	_ = cmd.Flags().MarkHidden("ref-gradient")

	return cmd
}

func NewValveCommand() *cobra.Command {
	var (
		sf        sessionFlags
		checkFlat bool
	)

	cmd := &cobra.Command{
		Use:     "valve",
		Short:   "Estimate the reference JT valve position of a cryomodule",
		GroupID: gAnalysis,
		Long: `Estimate the reference JT valve position of a cryomodule.

Give a window in which the downstream liquid level was held steady by the
JT valve. The mean valve position over the window is the reference for
later calibrations and measurements.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sf.check(false); err != nil {
				return err
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			buf, _, err := sf.load(cmd.Context(), conf)
			if err != nil {
				return err
			}
			pos, err := q0.EstimateRefValvePos(buf, conf.Params(), checkFlat)
			if err != nil {
				return err
			}
			cmd.Printf("Reference valve position: %s\n", report.Bold("%.1f%%", pos))
			return nil
		},
	}

	sf.register(cmd, false)
	_ = cmd.Flags().MarkHidden("ref-heat")
	_ = cmd.Flags().MarkHidden("ref-valve")
	cmd.Flags().BoolVar(&checkFlat, "check-flat", true, "fail if the liquid level was not flat over the window")

	return cmd
}

func loadStoredCurve(cmd *cobra.Command, conf config.Config, id string) (*q0.Curve, error) {
	st, err := openStore(cmd.Context(), conf)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.LoadCurve(cmd.Context(), id)
}
