// Package main is the command line entry point for powergov.
package main

import (
	"os"

	"codeberg.org/mutker/powergov/internal/config"
	"codeberg.org/mutker/powergov/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "powergov",
	Short: "Adaptive power profile governor",
	Long: `powergov watches power source, temperatures, GPU load and running
workloads, and moves the machine between configured power profiles
(CPU governor and EPP, core hotplug, GPU limits, VM tunables, display mode).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (default "+config.DefaultConfigPath+")")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warning, error)")
	flags.BoolP("debug", "d", false, "enable debug logging")
	flags.BoolP("verbose", "v", false, "enable verbose logging")
	flags.String("state-file", "", "override the state file path")
	flags.String("pid-file", "", "override the PID file path")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, setCmd, profilesCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("")
		os.Exit(1)
	}
}

// loadConfig resolves the configuration once for the running command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := []config.Option{config.WithFlags(changedFlags(cmd))}
	if configPath != "" {
		opts = append(opts, config.WithConfigFile(configPath))
	}

	return config.Load(opts...)
}

// initLogging routes logs to stdout for the daemon and to stderr for the
// one-shot commands, which only log warnings unless asked for more.
func initLogging(cfg *config.Config, daemon bool) error {
	level := cfg.EffectiveLogLevel()

	if daemon {
		return logger.Init(level, logger.IsService())
	}

	if !cfg.Debug && !cfg.Verbose && level == config.DefaultLogLevel {
		level = config.LogLevelWarning.String()
	}
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.InitWithWriter(os.Stderr, false)
	logger.SetLogLevel(lvl)

	return nil
}
