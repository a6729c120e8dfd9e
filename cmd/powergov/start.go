package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gate"
	"codeberg.org/mutker/powergov/internal/governor"
	"codeberg.org/mutker/powergov/internal/logger"
	"codeberg.org/mutker/powergov/internal/pid"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the governor in the foreground",
	Long: `Runs the control loop until SIGINT or SIGTERM. On exit the default
profile is applied and persisted.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	startCmd.Flags().Duration("interval", 0, "polling interval (overrides the configuration)")
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, true); err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		logger.Debug().Str("path", cfg.ConfigFile).Msg("Config loaded")
	}

	pidFile := pid.New(cfg.PIDFile)
	if err := pidFile.Write(); err != nil {
		if errors.HasCode(err, errors.ErrAlreadyRunning) {
			return fmt.Errorf("powergov is already running: %w", err)
		}
		return err
	}
	defer cleanup(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel)

	a, err := newApp(ctx, cfg, modeControl)
	if err != nil {
		return err
	}
	defer a.Close()

	g := governor.New(
		governor.Config{
			Interval:        cfg.Interval,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		a.director,
		a.reader,
		a.classifier,
		gate.New(cfg.GateConfig(), a.catalog),
		a.catalog,
		clock.Real(),
		logger.New("governor"),
	)

	return g.Run(ctx)
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
		cancel()
	case <-ctx.Done():
	}
}

func cleanup(pidFile *pid.File) {
	if err := pidFile.Remove(); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
