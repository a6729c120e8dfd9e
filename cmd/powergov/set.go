package main

import (
	"fmt"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/history"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <profile>",
	Short: "Switch to a profile now",
	Long: `Applies the named profile immediately, bypassing the classifier. With
--hold the running governor will not change the profile automatically for
that long; safety overrides still apply.`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

var setHold time.Duration

func init() {
	setCmd.Flags().DurationVar(&setHold, "hold", 0, "suppress automatic changes for this long (default from manual_hold)")
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return err
	}

	hold := cfg.ManualHold
	if cmd.Flags().Changed("hold") {
		hold = setHold
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, modeControl)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.director.Set(ctx, args[0], hold)
	if err != nil {
		switch {
		case errors.HasCode(err, errors.ErrResourceBusy):
			return fmt.Errorf("another transition is in progress, try again")
		case errors.HasCode(err, errors.ErrUnknownProfile):
			return fmt.Errorf("unknown profile %q, see 'powergov profiles'", args[0])
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s -> %s\n", orDash(rec.Previous), rec.Next)
	if rec.Status == history.StatusMismatch || rec.Failures > 0 {
		fmt.Fprintf(out, "warning: %d directive(s) failed; %s\n", rec.Failures, rec.Detail)
	}
	if hold > 0 {
		fmt.Fprintf(out, "held for %s\n", hold)
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
