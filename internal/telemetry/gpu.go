package telemetry

import (
	"context"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gpu"
)

// GPUReader queries a GPU device. A nil device reports an absent GPU.
type GPUReader struct {
	device gpu.Device
}

func NewGPUReader(device gpu.Device) *GPUReader {
	return &GPUReader{device: device}
}

func (r *GPUReader) ReadGPU(_ context.Context) (GPUReading, error) {
	if r.device == nil {
		return GPUReading{}, errors.New().WithData(ErrSourceUnavailable, "gpu")
	}

	util, err := r.device.Utilization()
	if err != nil {
		return GPUReading{}, err
	}

	reading := GPUReading{Present: true, Utilization: util}

	// memory and temperature are best effort once the device answered
	if mem, err := r.device.Memory(); err == nil {
		reading.VRAMUsedMB = mem.UsedMB
		reading.VRAMTotalMB = mem.TotalMB
	}
	if temp, err := r.device.Temperature(); err == nil {
		reading.Temperature = int(temp)
	}

	return reading, nil
}
