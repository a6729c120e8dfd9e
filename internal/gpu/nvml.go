package gpu

import (
	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlController abstracts the library lifecycle and device lookup
type nvmlController interface {
	Initialize() error
	Shutdown() error
	DeviceByIndex(index int) (nvml.Device, error)
}

type nvmlLibrary struct {
	initialized bool
}

// Initialize loads NVML. Machines without the NVIDIA driver get
// ErrNoDriver, which callers treat as "no GPU" rather than a fault.
func (l *nvmlLibrary) Initialize() error {
	if l.initialized {
		return nil
	}

	ret := nvml.Init()
	switch ret {
	case nvml.SUCCESS:
		l.initialized = true
		return nil
	case nvml.ERROR_LIBRARY_NOT_FOUND, nvml.ERROR_DRIVER_NOT_LOADED:
		return errors.New().Wrap(ErrNoDriver, newNVMLError(ret))
	default:
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}
}

func (l *nvmlLibrary) Shutdown() error {
	if !l.initialized {
		return nil
	}

	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	l.initialized = false

	return nil
}

// DeviceByIndex resolves the configured device, checking the index against
// the number of devices NVML reports.
func (l *nvmlLibrary) DeviceByIndex(index int) (nvml.Device, error) {
	errFactory := errors.New()
	if !l.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}
	if index < 0 || index >= count {
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Index int
			Count int
		}{index, count})
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}
