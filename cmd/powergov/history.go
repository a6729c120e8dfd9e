package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/powergov/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent profile transitions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	historyCount int
	historyJSON  bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyCount, "number", "n", 20, "number of transitions to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return err
	}
	if historyCount <= 0 {
		return fmt.Errorf("--number must be positive")
	}

	ctx := cmd.Context()
	log, err := openHistory(ctx, cfg, true)
	if err != nil {
		return err
	}
	if log == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No history recorded")
		return nil
	}
	defer log.Close()

	records, err := log.Recent(ctx, historyCount)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	printRecords(w, records)

	return nil
}

func printRecords(w io.Writer, records []history.Record) {
	fmt.Fprintln(w, "TIME\tTRANSITION\tCAUSE\tREASON\tSTATUS\tTELEMETRY")
	for _, r := range records {
		status := string(r.Status)
		if r.Failures > 0 {
			status = fmt.Sprintf("%s (%d failed)", status, r.Failures)
		}
		fmt.Fprintf(w, "%s\t%s -> %s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format(time.DateTime),
			orDash(r.Previous), r.Next, r.Cause, orDash(r.Reason), status, orDash(r.Summary))
	}
}
