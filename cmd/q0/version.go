package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/q0/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)

			v, err := apiClient.GetVersion()
			if err != nil {
				logrus.WithError(err).Debug("daemon version unavailable")
				return
			}
			if v.Version != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": v.Version,
				}).Warn("Version mismatch between client and daemon.")
			}
			cmd.Printf("daemon: %s %s\n", v.Version, v.GitCommit)
		},
	}
}
