package actuator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gpu"
	"codeberg.org/mutker/powergov/internal/profile"
)

// GPU applies power limit, clock lock and fan policy through NVML.
type GPU struct {
	device  gpu.Device
	timeout time.Duration
}

func NewGPU(device gpu.Device, timeout time.Duration) *GPU {
	return &GPU{device: device, timeout: timeout}
}

func (g *GPU) Name() string {
	return "gpu"
}

func (g *GPU) Apply(ctx context.Context, p profile.Profile) []Result {
	if g.device == nil {
		return nil
	}

	var results []Result
	apply := func(directive, value string, fn func() error, unsupported errors.ErrorCode, optional bool) {
		err := call(ctx, g.timeout, func(context.Context) error { return fn() })
		// restoring defaults on hardware without the control is a no-op
		if optional && errors.HasCode(err, unsupported) {
			return
		}
		results = append(results, Result{Actuator: g.Name(), Directive: directive, Value: value, Err: err})
	}

	if p.GPUPowerLimit > 0 {
		apply("power_limit", strconv.Itoa(p.GPUPowerLimit)+"W", func() error {
			return g.device.SetPowerLimit(gpu.PowerLimit(p.GPUPowerLimit))
		}, gpu.ErrPowerUnsupported, false)
	} else {
		apply("power_limit", "default", g.device.ResetPowerLimit, gpu.ErrPowerUnsupported, true)
	}

	if p.GPUClocks != nil {
		apply("locked_clocks", fmt.Sprintf("%d-%dMHz", p.GPUClocks.MinMHz, p.GPUClocks.MaxMHz), func() error {
			return g.device.LockClocks(p.GPUClocks.MinMHz, p.GPUClocks.MaxMHz)
		}, gpu.ErrClocksUnsupported, false)
	} else {
		apply("locked_clocks", "unlocked", g.device.UnlockClocks, gpu.ErrClocksUnsupported, true)
	}

	if p.GPUFanSpeed != nil {
		apply("fan_speed", strconv.Itoa(*p.GPUFanSpeed)+"%", func() error {
			return g.device.SetFanSpeed(gpu.FanSpeed(*p.GPUFanSpeed))
		}, gpu.ErrFanUnsupported, false)
	} else {
		apply("fan_speed", "auto", g.device.EnableAutoFanControl, gpu.ErrFanUnsupported, true)
	}

	return results
}

// Verify compares the enforced power limit. The device clamps requests
// to its supported range, so the clamped value is what is expected.
func (g *GPU) Verify(ctx context.Context, p profile.Profile) []string {
	if g.device == nil || p.GPUPowerLimit == 0 {
		return nil
	}

	got, err := callValue(ctx, g.timeout, func(context.Context) (gpu.PowerLimit, error) {
		return g.device.PowerLimit()
	})
	if err != nil {
		return []string{"gpu power limit unreadable"}
	}

	want := gpu.PowerLimit(p.GPUPowerLimit)
	if limits, err := g.device.PowerLimits(); err == nil {
		want = clampLimit(want, limits)
	}
	if got != want {
		return []string{fmt.Sprintf("gpu power limit %dW, want %dW", got, want)}
	}

	return nil
}

func clampLimit(limit gpu.PowerLimit, limits gpu.PowerLimits) gpu.PowerLimit {
	if limits.Max > 0 && limit > limits.Max {
		return limits.Max
	}
	if limit < limits.Min {
		return limits.Min
	}
	return limit
}
