package gpu

import (
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const bytesPerMiB = 1024 * 1024

// GPU drives a single NVIDIA device through NVML. Power and fan control
// are optional: laptop GPUs commonly refuse both, and the governor keeps
// running with telemetry only.
type GPU struct {
	lib    nvmlController
	device nvml.Device
	name   string
	power  PowerController
	fans   FanController
	log    logger.Logger
}

// Open initializes NVML and returns the device at index.
func Open(index int, log logger.Logger) (*GPU, error) {
	return open(&nvmlLibrary{}, index, log)
}

func open(lib nvmlController, index int, log logger.Logger) (*GPU, error) {
	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	device, err := lib.DeviceByIndex(index)
	if err != nil {
		_ = lib.Shutdown()
		return nil, err
	}

	g := newGPU(lib, device, log)
	log.Info().Str("gpu", g.name).Int("index", index).Msg("Detected GPU")

	return g, nil
}

func newGPU(lib nvmlController, device nvml.Device, log logger.Logger) *GPU {
	g := &GPU{lib: lib, device: device, log: log}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		g.name = name
	} else {
		log.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	if pc, err := newPowerController(device); err == nil {
		g.power = pc
	} else {
		log.Debug().Err(err).Msg("GPU power management unavailable")
	}

	if fc, err := newFanController(device); err == nil {
		g.fans = fc
	} else {
		log.Debug().Err(err).Msg("GPU fan control unavailable")
	}

	return g
}

func (g *GPU) Name() string {
	return g.name
}

func (g *GPU) Utilization() (int, error) {
	rates, ret := g.device.GetUtilizationRates()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrUtilizationReadFailed, newNVMLError(ret))
	}

	return int(rates.Gpu), nil
}

func (g *GPU) Memory() (MemoryInfo, error) {
	mem, ret := g.device.GetMemoryInfo()
	if !IsNVMLSuccess(ret) {
		return MemoryInfo{}, errors.New().Wrap(ErrMemoryReadFailed, newNVMLError(ret))
	}

	return MemoryInfo{
		UsedMB:  int(mem.Used / bytesPerMiB),
		TotalMB: int(mem.Total / bytesPerMiB),
	}, nil
}

func (g *GPU) Temperature() (Temperature, error) {
	temp, ret := g.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	return Temperature(temp), nil
}

func (g *GPU) PowerLimit() (PowerLimit, error) {
	if g.power == nil {
		return 0, errors.New().New(ErrPowerUnsupported)
	}
	return g.power.GetLimit()
}

func (g *GPU) PowerLimits() (PowerLimits, error) {
	if g.power == nil {
		return PowerLimits{}, errors.New().New(ErrPowerUnsupported)
	}
	return g.power.GetLimits(), nil
}

func (g *GPU) SetPowerLimit(limit PowerLimit) error {
	if g.power == nil {
		return errors.New().New(ErrPowerUnsupported)
	}
	if err := g.power.SetLimit(limit); err != nil {
		return err
	}
	g.log.Debug().Msgf("Set power limit: %dW", limit)

	return nil
}

func (g *GPU) ResetPowerLimit() error {
	if g.power == nil {
		return errors.New().New(ErrPowerUnsupported)
	}
	return g.power.ResetToDefault()
}

func (g *GPU) LockClocks(minMHz, maxMHz int) error {
	//nolint:gosec // G115: clock ranges are validated positive by the catalog
	switch ret := g.device.SetGpuLockedClocks(uint32(minMHz), uint32(maxMHz)); ret {
	case nvml.SUCCESS:
	case nvml.ERROR_NOT_SUPPORTED:
		return errors.New().Wrap(ErrClocksUnsupported, newNVMLError(ret))
	default:
		return errors.New().Wrap(ErrLockClocks, newNVMLError(ret))
	}
	g.log.Debug().Msgf("Locked GPU clocks: %d-%d MHz", minMHz, maxMHz)

	return nil
}

func (g *GPU) UnlockClocks() error {
	switch ret := g.device.ResetGpuLockedClocks(); ret {
	case nvml.SUCCESS:
	case nvml.ERROR_NOT_SUPPORTED:
		return errors.New().Wrap(ErrClocksUnsupported, newNVMLError(ret))
	default:
		return errors.New().Wrap(ErrUnlockClocks, newNVMLError(ret))
	}

	return nil
}

func (g *GPU) SetFanSpeed(speed FanSpeed) error {
	if g.fans == nil {
		return errors.New().New(ErrFanUnsupported)
	}
	return g.fans.SetSpeed(speed)
}

func (g *GPU) EnableAutoFanControl() error {
	if g.fans == nil {
		return errors.New().New(ErrFanUnsupported)
	}
	if err := g.fans.EnableAuto(); err != nil {
		return err
	}
	g.log.Debug().Msg("Auto fan control: enabled")

	return nil
}

func (g *GPU) Close() error {
	return g.lib.Shutdown()
}

var _ Device = (*GPU)(nil)
