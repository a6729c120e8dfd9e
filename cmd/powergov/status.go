package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/powergov/internal/governor"
	"codeberg.org/mutker/powergov/internal/pid"
	"codeberg.org/mutker/powergov/internal/telemetry"
	"github.com/spf13/cobra"
)

const statusRecent = 5

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current profile, live telemetry and recent transitions",
	Long: `Shows the persisted governor state, a fresh telemetry snapshot, the
profile the classifier would pick right now and the latest transitions.
Nothing is changed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

type statusReport struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
	governor.Status
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, modeInspect)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := governor.Inspect(ctx, a.store, a.reader, a.classifier, a.catalog, a.history, statusRecent)
	if err != nil {
		return err
	}

	report := statusReport{Status: status}
	if running, err := pid.New(cfg.PIDFile).Running(); err == nil {
		report.Running = true
		report.PID = running
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printStatus(cmd.OutOrStdout(), report, time.Now())
	return nil
}

func printStatus(out io.Writer, r statusReport, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if r.Running {
		fmt.Fprintf(w, "Daemon:\trunning (pid %d)\n", r.PID)
	} else {
		fmt.Fprintf(w, "Daemon:\tnot running\n")
	}

	st := r.State
	if r.Persisted {
		fmt.Fprintf(w, "Profile:\t%s (since %s)\n", st.Profile, formatSince(st.Since, now))
	} else {
		fmt.Fprintf(w, "Profile:\t%s (no persisted state)\n", st.Profile)
	}
	if st.Status != "" && st.Status != "ok" {
		fmt.Fprintf(w, "Last transition:\t%s %s\n", st.Status, st.Detail)
	}
	if st.Held(now) {
		fmt.Fprintf(w, "Hold:\t%s until %s\n", st.HoldReason, st.HoldUntil.Format(time.RFC3339))
	}
	if !st.Deadline.IsZero() {
		fmt.Fprintf(w, "Deadline:\t%s\n", st.Deadline.Format(time.RFC3339))
	}
	if st.Pending != "" {
		fmt.Fprintf(w, "Pending:\t%s for %d ticks\n", st.Pending, st.PendingTicks)
	}
	fmt.Fprintf(w, "Verdict:\t%s\n", r.Verdict)

	printSnapshot(w, r.Snapshot)

	if len(r.Recent) > 0 {
		fmt.Fprintln(w, "\nRecent transitions:")
		printRecords(w, r.Recent)
	}
}

func printSnapshot(w io.Writer, snap telemetry.Snapshot) {
	power := string(snap.Power)
	if snap.BatteryPercent != telemetry.NoBattery {
		power = fmt.Sprintf("%s (battery %d%%)", power, snap.BatteryPercent)
	}
	fmt.Fprintf(w, "Power:\t%s\n", power)

	if snap.CPUTemperature != telemetry.NoTemperature {
		fmt.Fprintf(w, "CPU temperature:\t%d°C\n", snap.CPUTemperature)
	}

	if snap.GPU.Present {
		fmt.Fprintf(w, "GPU:\t%d%% busy, %d/%d MiB, %d°C\n",
			snap.GPU.Utilization, snap.GPU.VRAMUsedMB, snap.GPU.VRAMTotalMB, snap.GPU.Temperature)
	} else {
		fmt.Fprintf(w, "GPU:\tnot available\n")
	}

	names := make([]string, 0, len(snap.Workloads))
	for name := range snap.Workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if procs := snap.Workloads[name]; len(procs) > 0 {
			fmt.Fprintf(w, "Workload %s:\t%s\n", name, strings.Join(procs, ", "))
		}
	}
}

func formatSince(since, now time.Time) string {
	if since.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s, %s ago", since.Format(time.RFC3339), now.Sub(since).Truncate(time.Second))
}
