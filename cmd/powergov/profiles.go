package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"codeberg.org/mutker/powergov/internal/profile"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the configured profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	printProfiles(cmd.OutOrStdout(), catalog)
	return nil
}

func printProfiles(out io.Writer, catalog *profile.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tLEVEL\tGOVERNOR\tEPP\tCORES\tGPU LIMIT\tMAX DURATION")
	for _, name := range catalog.Names() {
		p, _ := catalog.Get(name)

		label := name
		if name == catalog.DefaultName() {
			label += " (default)"
		}

		cores := "-"
		if off := p.OfflineCores(); len(off) > 0 {
			cores = "offline " + profile.FormatCPUList(off)
		} else if on := p.OnlineCores(); len(on) > 0 {
			cores = "online " + profile.FormatCPUList(on)
		}

		limit := "default"
		if p.GPUPowerLimit > 0 {
			limit = fmt.Sprintf("%dW", p.GPUPowerLimit)
		}

		maxDuration := "-"
		if p.MaxDuration > 0 {
			maxDuration = p.MaxDuration.String()
		}

		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			label, p.Level, orDash(p.Governor), orDash(p.EPP), cores, limit, maxDuration)
	}
}
