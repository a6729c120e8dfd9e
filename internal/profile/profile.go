// Package profile holds the static operating profiles and the catalog the
// governor moves between.
package profile

import "time"

// ClockRange is a GPU graphics clock lock in MHz.
type ClockRange struct {
	MinMHz int `mapstructure:"min"`
	MaxMHz int `mapstructure:"max"`
}

// Memory holds VM tunables. Nil pointers and empty strings leave the
// current kernel value untouched.
type Memory struct {
	Swappiness           *int   `mapstructure:"swappiness"`
	VFSCachePressure     *int   `mapstructure:"vfs_cache_pressure"`
	DirtyRatio           *int   `mapstructure:"dirty_ratio"`
	DirtyBackgroundRatio *int   `mapstructure:"dirty_background_ratio"`
	TransparentHugepage  string `mapstructure:"transparent_hugepage"`
}

// Profile is a named bundle of hardware directives. Zero values mean
// "leave as is" unless noted.
type Profile struct {
	Name  string `mapstructure:"name"`
	Level int    `mapstructure:"level"`

	Governor     string `mapstructure:"governor"`
	EPP          string `mapstructure:"epp"`
	MinFreqMHz   int    `mapstructure:"min_freq_mhz"`
	MaxFreqMHz   int    `mapstructure:"max_freq_mhz"`
	CoresOnline  string `mapstructure:"cores_online"`
	CoresOffline string `mapstructure:"cores_offline"`

	// GPUPowerLimit in watts, 0 restores the device default.
	GPUPowerLimit int `mapstructure:"gpu_power_limit"`
	// GPUClocks nil releases any clock lock.
	GPUClocks *ClockRange `mapstructure:"gpu_clocks"`
	// GPUFanSpeed nil hands the fans back to the driver.
	GPUFanSpeed *int `mapstructure:"gpu_fan_speed"`

	Memory      Memory        `mapstructure:"memory"`
	DisplayMode string        `mapstructure:"display_mode"`
	MaxDuration time.Duration `mapstructure:"max_duration"`

	online  []int
	offline []int
}

// OnlineCores returns the CPUs this profile forces online.
func (p Profile) OnlineCores() []int {
	return append([]int(nil), p.online...)
}

// OfflineCores returns the CPUs this profile forces offline.
func (p Profile) OfflineCores() []int {
	return append([]int(nil), p.offline...)
}

// IntPtr is a helper for building profiles in code.
func IntPtr(v int) *int {
	return &v
}

// Builtin returns the catalog used when the configuration declares no
// profiles: a battery/AC pair plus a boost level for heavy workloads.
func Builtin() []Profile {
	return []Profile{
		{
			Name:          "powersave",
			Level:         0,
			Governor:      "powersave",
			EPP:           "power",
			GPUPowerLimit: 0,
			Memory: Memory{
				Swappiness:          IntPtr(60),
				DirtyRatio:          IntPtr(20),
				TransparentHugepage: "madvise",
			},
		},
		{
			Name:     "balanced",
			Level:    1,
			Governor: "powersave",
			EPP:      "balance_performance",
			Memory: Memory{
				Swappiness:          IntPtr(30),
				DirtyRatio:          IntPtr(20),
				TransparentHugepage: "madvise",
			},
		},
		{
			Name:     "performance",
			Level:    2,
			Governor: "performance",
			EPP:      "performance",
			Memory: Memory{
				Swappiness:          IntPtr(10),
				VFSCachePressure:    IntPtr(50),
				DirtyRatio:          IntPtr(40),
				TransparentHugepage: "always",
			},
			MaxDuration: 4 * time.Hour,
		},
	}
}
