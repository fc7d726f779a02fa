package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/report"
	"github.com/charlie0129/q0/pkg/utils/ptr"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change the analysis parameters of the q0 daemon",
		GroupID: gDaemon,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the daemon configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				conf, err := apiClient.GetConfig()
				if err != nil {
					return fmt.Errorf("failed to get config: %w", err)
				}
				cmd.Printf("Minimum run duration:   %s\n", report.Bold("%.0fs", ptr.Deref(conf.MinRunDurationSeconds, 0)))
				cmd.Printf("Valve tolerance:        %s\n", report.Bold("%.1f%%", ptr.Deref(conf.ValveTolerance, 0)))
				cmd.Printf("Heater tolerance:       %s\n", report.Bold("%.1f W", ptr.Deref(conf.HeaterTolerance, 0)))
				cmd.Printf("Gradient tolerance:     %s\n", report.Bold("%.1f MV/m", ptr.Deref(conf.GradientTolerance, 0)))
				cmd.Printf("Min downstream level:   %s\n", report.Bold("%.0f%%", ptr.Deref(conf.MinDownstreamLevel, 0)))
				cmd.Printf("Low upstream level:     %s\n", report.Bold("%.0f%%", ptr.Deref(conf.LowUpstreamLevel, 0)))
				cmd.Printf("Check upstream level:   %s\n", report.Bool2Text(ptr.Deref(conf.CheckUpstreamLevel, false)))
				cmd.Printf("Settle seconds per W:   %s\n", report.Bold("%.0f", ptr.Deref(conf.SettleSecondsPerWatt, 0)))
				cmd.Printf("Sample interval:        %s\n", report.Bold("%.0fs", ptr.Deref(conf.SampleIntervalSeconds, 0)))
				cmd.Printf("Data directory:         %s\n", report.Bold("%s", ptr.Deref(conf.DataDir, "")))
				cmd.Printf("Batch plan:             %s\n", report.Bold("%s", ptr.Deref(conf.BatchPlan, "")))
				cmd.Printf("Batch schedule:         %s\n", report.Bold("%s", ptr.Deref(conf.BatchSchedule, "")))
				cmd.Printf("MQTT broker:            %s\n", report.Bold("%s", ptr.Deref(conf.MQTTBroker, "")))
				cmd.Printf("Read-only HTTP listen:  %s\n", report.Bold("%s", ptr.Deref(conf.HTTPListen, "")))
				return nil
			},
		},
		&cobra.Command{
			Use:   "min-run-duration [seconds|duration]",
			Short: "Set the minimum duration of a steady-state run",
			RunE: func(_ *cobra.Command, args []string) error {
				seconds, err := parseSecondsArg(args, "duration")
				if err != nil {
					return err
				}

				ret, err := apiClient.SetMinRunDuration(seconds)
				if err != nil {
					return fmt.Errorf("failed to set minimum run duration: %w", err)
				}

				logReply(ret, "minimum run duration set to %ds", seconds)
				return nil
			},
		},
		newToggleCommand(
			"upstream-check",
			"Set whether a low upstream liquid level ends a run",
			`Set whether a low upstream liquid level ends a run.

When enabled, a run also ends as soon as the upstream liquid level drops
below the low upstream level threshold.`,
			func(enabled bool) (string, error) { return apiClient.SetCheckUpstreamLevel(enabled) },
		),
	)

	return cmd
}
