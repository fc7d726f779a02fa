package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath = "/etc/systemd/system/q0.service"
	// systemctl is replaced in tests.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=q0 helium boil-off analysis daemon
After=network-online.target

[Service]
Type=simple
ExecStart=/path/to/q0 daemon --config /path/to/config --daemon-socket /path/to/socket{{extra}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// Options are baked into the unit file.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
}

// Unit renders the systemd unit that runs exePath as the daemon.
func Unit(exePath string, o Options) string {
	extra := ""
	if o.AllowNonRoot {
		extra = " --always-allow-non-root-access"
	}
	return strings.NewReplacer(
		"/path/to/q0", exePath,
		"/path/to/config", o.ConfigPath,
		"/path/to/socket", o.UnixSocketPath,
		"{{extra}}", extra,
	).Replace(unitTemplate)
}

func Install(o Options) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing systemd unit to %s", unitPath)
	if err := os.WriteFile(unitPath, []byte(Unit(exePath, o)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting q0")
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", filepath.Base(unitPath))
}
