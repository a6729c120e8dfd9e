package main

import (
	"context"

	"codeberg.org/mutker/powergov/internal/actuator"
	"codeberg.org/mutker/powergov/internal/classify"
	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/config"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/governor"
	"codeberg.org/mutker/powergov/internal/gpu"
	"codeberg.org/mutker/powergov/internal/history"
	"codeberg.org/mutker/powergov/internal/logger"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/state"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

// app wires the components shared by the commands.
type app struct {
	cfg        *config.Config
	catalog    *profile.Catalog
	classifier classify.Classifier
	reader     *telemetry.Reader
	store      *state.Store
	history    history.Log
	director   *governor.Director
	device     *gpu.GPU
}

type appMode int

const (
	// modeControl may change hardware state.
	modeControl appMode = iota
	// modeInspect only reads.
	modeInspect
)

func newApp(ctx context.Context, cfg *config.Config, mode appMode) (*app, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	classifier, err := cfg.NewClassifier(catalog)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		catalog:    catalog,
		classifier: classifier,
		store:      state.NewStore(cfg.StateFile),
	}

	var device gpu.Device
	if cfg.GPU.Enabled {
		g, err := gpu.Open(cfg.GPU.Index, logger.New("gpu"))
		switch {
		case errors.HasCode(err, gpu.ErrNoDriver):
			logger.Info().Msg("No NVIDIA driver loaded, running without GPU")
		case err != nil:
			logger.Warn().Err(err).Msg("GPU unavailable, continuing without GPU telemetry and control")
		default:
			a.device = g
			device = g
		}
	}

	a.reader = newReader(cfg, device)

	a.history, err = openHistory(ctx, cfg, mode == modeInspect)
	if err != nil {
		a.Close()
		return nil, err
	}

	if mode == modeControl {
		a.director = governor.NewDirector(
			governor.DirectorConfig{
				MaxDuration:        cfg.MaxDuration,
				LockTimeout:        cfg.Lock.Timeout,
				MaxPersistFailures: cfg.State.MaxPersistFailures,
			},
			catalog,
			newActuators(cfg, device),
			a.store,
			state.NewLock(cfg.LockFile),
			a.history,
			clock.Real(),
			logger.New("director"),
		)
	}

	return a, nil
}

func newReader(cfg *config.Config, device gpu.Device) *telemetry.Reader {
	matcher := telemetry.NewMatcher(cfg.Signatures)

	sources := telemetry.Sources{
		Power:   telemetry.NewPowerSupplyReader(cfg.Telemetry.SysRoot),
		Thermal: telemetry.NewThermalReader(cfg.Telemetry.SysRoot, cfg.Telemetry.CPUSensors),
		Matcher: matcher,
	}
	if device != nil {
		sources.GPU = telemetry.NewGPUReader(device)
	}
	if !matcher.Empty() {
		sources.Processes = telemetry.NewProcessTable(matcher.NeedsCmdline())
	}

	return telemetry.NewReader(sources,
		telemetry.WithTimeout(cfg.Telemetry.Timeout),
		telemetry.WithLogger(logger.New("telemetry")),
	)
}

func newActuators(cfg *config.Config, device gpu.Device) []actuator.Actuator {
	timeout := cfg.Actuator.Timeout

	actuators := []actuator.Actuator{
		actuator.NewCPU(cfg.Actuator.SysRoot, timeout),
		actuator.NewMemory(cfg.Actuator.ProcRoot, cfg.Actuator.SysRoot, timeout),
	}
	if device != nil {
		actuators = append(actuators, actuator.NewGPU(device, timeout))
	}
	if len(cfg.Display.Command) > 0 {
		actuators = append(actuators, actuator.NewDisplay(cfg.Display.Command, timeout))
	}

	return actuators
}

// openHistory falls back to an in-memory log when no path is configured.
// A read-only open of a database that does not exist yet yields nil.
func openHistory(ctx context.Context, cfg *config.Config, readOnly bool) (history.Log, error) {
	if cfg.History.Path == "" {
		if readOnly {
			return nil, nil
		}
		return history.NewMemory(cfg.History.MaxRecords, cfg.History.MaxAge), nil
	}

	log, err := history.Open(ctx, history.Config{
		DBPath:     cfg.History.Path,
		MaxRecords: cfg.History.MaxRecords,
		MaxAge:     cfg.History.MaxAge,
		ReadOnly:   readOnly,
	}, logger.New("history"))
	if err != nil {
		if readOnly && errors.HasCode(err, history.ErrStorageInit) {
			logger.Debug().Err(err).Msg("History not available")
			return nil, nil
		}
		return nil, err
	}

	return log, nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close history")
		}
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to shut down NVML")
		}
	}
}
