package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/report"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sched"},
		Short:   "Manage scheduled reprocessing of the batch plan",
		Long: `Manage scheduled reprocessing of the batch plan configured as batchPlan.

  q0 schedule 'minute hour day month weekday' Set schedule with cron expression
  q0 schedule disable                         Disable the schedule
  q0 schedule postpone [duration]             Postpone next run
  q0 schedule skip                            Skip next run
  q0 schedule run                             Run the plan now
  q0 schedule show                            Show current schedule`,
		Example: `  q0 schedule '0 2 * * *'   (At 02:00 every day)
  q0 schedule '0 6 * * 1'   (At 06:00 on Monday)
  q0 schedule '@every 12h'`,
		GroupID: gAdvanced,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the batch schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := apiClient.SetSchedule(""); err != nil {
					return fmt.Errorf("failed to disable schedule: %w", err)
				}
				cmd.Println("Batch schedule disabled.")
				return nil
			},
		},
		newSchedulePostponeCommand(),
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ret, err := apiClient.SkipSchedule()
				if err != nil {
					return fmt.Errorf("failed to skip run: %w", err)
				}
				cmd.Println(unquote(ret))
				return nil
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Process the batch plan now",
			Long:  "Process the batch plan now. Progress is reported on q0 events.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ret, err := apiClient.RunSchedule()
				if err != nil {
					return fmt.Errorf("failed to start run: %w", err)
				}
				cmd.Println(unquote(ret))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the current batch schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
	)

	return cmd
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled run",
		Example: `  q0 schedule postpone      (Postpone by 1 hour)
  q0 schedule postpone 90m  (Postpone by 90 minutes)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			if d < time.Second {
				return fmt.Errorf("duration must be at least 1s, got %s", d)
			}
			ret, err := apiClient.PostponeSchedule(d)
			if err != nil {
				return fmt.Errorf("failed to postpone run: %w", err)
			}
			cmd.Println(unquote(ret))
			return nil
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	ret, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return fmt.Errorf("failed to set schedule: %w", err)
	}
	cmd.Println(unquote(ret))
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	s, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if s.Plan == "" {
		cmd.Println("No batch plan configured.")
		return nil
	}
	cmd.Printf("Plan:      %s\n", report.Bold("%s", s.Plan))
	if s.Schedule == "" {
		cmd.Println("Schedule:  not set")
	} else {
		cmd.Printf("Schedule:  %s\n", report.Bold("%s", s.Schedule))
		cmd.Printf("Next run:  %s\n", report.Bold("%s", s.NextRun.Local().Format(time.DateTime)))
	}
	cmd.Printf("Running:   %s\n", report.Bool2Text(s.Busy))
	return nil
}

// unquote strips the JSON quotes of a daemon message.
func unquote(s string) string {
	var msg string
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return s
	}
	return msg
}
