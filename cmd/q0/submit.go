package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/client"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/report"
	"github.com/charlie0129/q0/pkg/types"
)

var apiClient = client.NewClient("/var/run/q0.sock")

func NewSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Process a session on the q0 daemon",
		GroupID: gDaemon,
		Long: `Process a session on the q0 daemon.

The data is loaded locally, from a file or the archive, and sent to the
daemon. The daemon keeps calibration curves, so measurements only need the
ID printed when their calibration was submitted.`,
	}

	cmd.AddCommand(
		newSubmitSessionCommand("calibration", false),
		newSubmitSessionCommand("measurement", true),
	)

	return cmd
}

func newSubmitSessionCommand(use string, measurement bool) *cobra.Command {
	var (
		sf            sessionFlags
		verbose       bool
		calibrationID string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: "Submit a " + use + " session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sf.check(measurement); err != nil {
				return err
			}
			if measurement && calibrationID == "" {
				return fmt.Errorf("--calibration-id is required")
			}
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			buf, w, err := sf.load(cmd.Context(), conf)
			if err != nil {
				return fmt.Errorf("failed to load session data: %w", err)
			}

			name := sf.cryomodule().Name() + " calibration"
			if measurement {
				name = fmt.Sprintf("%s cavity %d", sf.cryomodule().Name(), sf.plan.Cavity)
			}
			req := types.NewSessionRequest(name, w, sf.plan.References(), buf)

			var resp *types.SessionResponse
			if measurement {
				req.CalibrationID = calibrationID
				resp, err = apiClient.SubmitMeasurement(req)
			} else {
				resp, err = apiClient.SubmitCalibration(req)
			}
			if err != nil {
				return err
			}

			report.Text(cmd.OutOrStdout(), resp, verbose)
			logrus.WithField("id", resp.ID).Info("session processed by daemon")
			return nil
		},
	}

	sf.register(cmd, measurement)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print fit diagnostics")
	if measurement {
		cmd.Flags().StringVar(&calibrationID, "calibration-id", "", "ID of a calibration known to the daemon")
	}

	return cmd
}

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Follow the sessions processed by the q0 daemon",
		GroupID: gDaemon,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := apiClient.Events(cmd.Context())
			if err != nil {
				return err
			}
			for ev := range ch {
				if err := printEvent(cmd, ev); err != nil {
					logrus.WithError(err).WithField("event", ev.Name).Warn("failed to decode event")
				}
			}
			return nil
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) error {
	switch ev.Name {
	case events.SessionProcessed, events.SessionFailed:
		p, err := events.DecodeAs[events.SessionEvent](ev)
		if err != nil {
			return err
		}
		if ev.Name == events.SessionProcessed {
			cmd.Printf("%s %s %s (%d runs) %s\n", report.Bool2Text(true), p.Kind, p.Name, p.Runs, p.ID)
		} else {
			cmd.Printf("%s %s %s: %s\n", report.Bool2Text(false), p.Kind, p.Name, p.Message)
		}
	case events.BatchUpcoming, events.BatchFinished, events.BatchFailed:
		p, err := events.DecodeAs[events.BatchEvent](ev)
		if err != nil {
			return err
		}
		switch ev.Name {
		case events.BatchUpcoming:
			cmd.Printf("batch %s starts at %s\n", p.Plan, time.Unix(p.RunAt, 0).Format(time.DateTime))
		case events.BatchFinished:
			cmd.Printf("%s batch %s: %d sessions, %d failed\n", report.Bool2Text(p.Failed == 0), p.Plan, p.Sessions, p.Failed)
		default:
			cmd.Printf("%s batch %s: %s\n", report.Bool2Text(false), p.Plan, p.Message)
		}
	}
	return nil
}
