package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// parseSecondsArg accepts either whole seconds or a Go duration such as
// "20m".
func parseSecondsArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one %s, got %d arguments", valueName, len(args))
	}

	if n, err := strconv.Atoi(args[0]); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: use seconds or a duration like 20m", valueName, args[0])
	}
	return int(d / time.Second), nil
}

// logReply logs what the daemon said about a change.
func logReply(ret string, format string, a ...any) {
	if msg := unquote(ret); msg != "" {
		logrus.Debugf("daemon responded: %s", msg)
	}
	logrus.Infof(format, a...)
}

// newToggleCommand returns a command with enable and disable subcommands
// that both go through set.
func newToggleCommand(use, short, long string, set func(bool) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
	}

	for _, enabled := range []bool{true, false} {
		verb := "enable"
		if !enabled {
			verb = "disable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   verb,
			Short: fmt.Sprintf("%s %s", verb, use),
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := set(enabled)
				if err != nil {
					return fmt.Errorf("failed to %s %s: %w", verb, use, err)
				}
				logReply(ret, "%s %sd", use, verb)
				return nil
			},
		})
	}

	return cmd
}
