package gpu

// Device is the subset of GPU operations the governor reads and drives.
type Device interface {
	Name() string

	// Telemetry
	Utilization() (int, error)
	Memory() (MemoryInfo, error)
	Temperature() (Temperature, error)

	// Power management
	PowerLimit() (PowerLimit, error)
	PowerLimits() (PowerLimits, error)
	SetPowerLimit(PowerLimit) error
	ResetPowerLimit() error

	// Clocks
	LockClocks(minMHz, maxMHz int) error
	UnlockClocks() error

	// Fan control
	SetFanSpeed(FanSpeed) error
	EnableAutoFanControl() error

	// Close releases NVML and leaves the hardware as it is, so settings
	// applied by a one-shot command outlive the process.
	Close() error
}

// FanController manages fan operations
type FanController interface {
	SetSpeed(speed FanSpeed) error
	EnableAuto() error
}

// PowerController manages power operations
type PowerController interface {
	GetLimit() (PowerLimit, error)
	SetLimit(limit PowerLimit) error
	GetLimits() PowerLimits
	ResetToDefault() error
}

// Domain types for type safety and validation
type (
	Temperature int
	FanSpeed    int
	PowerLimit  int

	FanSpeedLimits struct {
		Min, Max FanSpeed
	}

	PowerLimits struct {
		Min, Max, Default PowerLimit
	}

	// MemoryInfo is framebuffer usage in MiB.
	MemoryInfo struct {
		UsedMB, TotalMB int
	}
)
