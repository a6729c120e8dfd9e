package main

import (
	"fmt"
	"syscall"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/pid"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running governor to restore the default profile and exit",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return err
	}

	pidFile := pid.New(cfg.PIDFile)
	running, err := pidFile.Running()
	if err != nil {
		if errors.HasCode(err, errors.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "powergov is not running")
			return nil
		}
		return err
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to powergov (pid %d)\n", running)

	return nil
}
