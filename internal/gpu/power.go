package gpu

import (
	"math"
	"sync"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const milliWattsToWatts = 1000

type powerController struct {
	device nvml.Device
	limits PowerLimits
	mu     sync.RWMutex
}

func newPowerController(device nvml.Device) (PowerController, error) {
	errFactory := errors.New()
	pc := &powerController{device: device}

	minLimit, maxLimit, ret := device.GetPowerManagementLimitConstraints()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}

	defaultLimit, ret := device.GetPowerManagementDefaultLimit()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}

	pc.limits = PowerLimits{
		Min:     PowerLimit(minLimit / milliWattsToWatts),
		Max:     PowerLimit(maxLimit / milliWattsToWatts),
		Default: PowerLimit(defaultLimit / milliWattsToWatts),
	}

	return pc, nil
}

func (pc *powerController) GetLimit() (PowerLimit, error) {
	errFactory := errors.New()
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	limit, ret := pc.device.GetPowerManagementLimit()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrPowerLimitFailed, newNVMLError(ret))
	}

	return PowerLimit(limit / milliWattsToWatts), nil
}

// SetLimit clamps limit into the device constraints before applying it.
func (pc *powerController) SetLimit(limit PowerLimit) error {
	errFactory := errors.New()
	pc.mu.Lock()
	defer pc.mu.Unlock()

	limit = pc.clamp(limit)
	ret := pc.device.SetPowerManagementLimit(wattsToMilliWatts(limit))
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrSetPowerLimit, newNVMLError(ret))
	}

	return nil
}

func (pc *powerController) GetLimits() PowerLimits {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.limits
}

func (pc *powerController) ResetToDefault() error {
	return pc.SetLimit(pc.limits.Default)
}

func (pc *powerController) clamp(limit PowerLimit) PowerLimit {
	if limit < pc.limits.Min {
		return pc.limits.Min
	}
	if limit > pc.limits.Max {
		return pc.limits.Max
	}

	return limit
}

func wattsToMilliWatts(watts PowerLimit) uint32 {
	if watts <= 0 {
		return 0
	}

	const maxWatts = PowerLimit(math.MaxUint32 / milliWattsToWatts)
	if watts > maxWatts {
		return math.MaxUint32
	}

	result := watts * PowerLimit(milliWattsToWatts)

	//nolint:gosec // G115: Safe - bounds checked above
	return uint32(result)
}
