package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutils "github.com/charlie0129/q0/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install q0 daemon as a systemd service",
		GroupID: gDaemon,
		Long: `Install q0 daemon as a systemd service (system-wide).

This makes q0 run in the background and start on boot. You must run this command as root.

By default, only root is allowed to access the daemon socket. Use --allow-non-root-access to let other users submit sessions without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Install(daemonutils.Options{
				ConfigPath:     configPath,
				UnixSocketPath: unixSocketPath,
				AllowNonRoot:   allowNonRootAccess,
			})
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will use the current binary (%s) at startup, so do not move it. Once it is moved or deleted, run `q0 install' again.\n", exePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the q0 daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the q0 systemd service",
		GroupID: gDaemon,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := daemonutils.Uninstall(); err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			cmd.Printf("Your config is kept in %s. Remove it and the q0 binary manually for a complete uninstall.\n", configPath)
			return nil
		},
	}
}
