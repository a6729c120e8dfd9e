package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// changedFlags returns the flags the user actually set, so that unset
// flag defaults do not shadow the configuration file.
func changedFlags(cmd *cobra.Command) *pflag.FlagSet {
	set := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			set.AddFlag(f)
		}
	})

	return set
}
