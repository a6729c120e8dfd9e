package gpu

import (
	"sync"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// fanController keeps no notion of the current fan mode: another powergov
// process may have changed it, so every request goes to the device.
type fanController struct {
	device nvml.Device
	count  int
	limits FanSpeedLimits
	mu     sync.Mutex
}

func newFanController(device nvml.Device) (FanController, error) {
	errFactory := errors.New()
	fc := &fanController{device: device}

	count, ret := device.GetNumFans()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
	}
	if count == 0 {
		return nil, errFactory.New(ErrFanUnsupported)
	}
	fc.count = count

	minSpeed, maxSpeed, ret := device.GetMinMaxFanSpeed()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrGetFanLimitsFailed, newNVMLError(ret))
	}

	fc.limits = FanSpeedLimits{
		Min: FanSpeed(minSpeed),
		Max: FanSpeed(maxSpeed),
	}

	return fc, nil
}

// SetSpeed clamps speed into the fan limits and applies it to every fan.
func (fc *fanController) SetSpeed(speed FanSpeed) error {
	errFactory := errors.New()
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if speed < fc.limits.Min {
		speed = fc.limits.Min
	}
	if speed > fc.limits.Max {
		speed = fc.limits.Max
	}

	for i := 0; i < fc.count; i++ {
		if ret := fc.device.SetFanSpeed_v2(i, int(speed)); !IsNVMLSuccess(ret) {
			return errFactory.Wrap(ErrSetFanSpeed, newNVMLError(ret))
		}
	}

	return nil
}

func (fc *fanController) EnableAuto() error {
	errFactory := errors.New()
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for i := 0; i < fc.count; i++ {
		if ret := fc.device.SetDefaultFanSpeed_v2(i); !IsNVMLSuccess(ret) {
			return errFactory.Wrap(ErrFanControlFailed, newNVMLError(ret))
		}
	}

	return nil
}
