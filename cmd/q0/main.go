package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/q0/pkg/client"
	"github.com/charlie0129/q0/pkg/q0"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/q0.sock"
	configPath     = "/etc/q0.json"
)

var (
	gAnalysis     = "Analysis:"
	gDaemon       = "Daemon:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gAnalysis,
		gDaemon,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: q0 daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'q0 daemon' or point --daemon-socket at a running one.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--always-allow-non-root-access'")
	} else if errors.Is(err, q0.ErrInputData) {
		fmt.Fprintln(os.Stderr, "\nError: the data cannot be analysed. Check the archive window and the reference values.")
	}
}

// loadEnv applies .env and environment overrides to the flag defaults.
func loadEnv() {
	_ = godotenv.Load()
	if v := os.Getenv("Q0_CONFIG"); v != "" {
		configPath = v
	}
	if v := os.Getenv("Q0_SOCKET"); v != "" {
		unixSocketPath = v
	}
}

func main() {
	loadEnv()

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "q0",
		Short: "q0 measures the intrinsic quality factor of SRF cavities from helium boil-off",
		Long: `q0 measures the intrinsic quality factor (Q0) of superconducting RF cavities.

It calibrates the liquid helium drain rate of a cryomodule against known
electric heat loads, then projects the drain rate of RF runs onto that
calibration to obtain the RF heat load and Q0.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}
			apiClient = client.NewClient(unixSocketPath)
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "q0 daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewCalibrateCommand(),
		NewMeasureCommand(),
		NewBatchCommand(),
		NewFetchCommand(),
		NewValveCommand(),
		NewDaemonCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
		NewSubmitCommand(),
		NewEventsCommand(),
		NewScheduleCommand(),
		NewConfigCommand(),
		NewVersionCommand(),
	)

	return cmd
}
