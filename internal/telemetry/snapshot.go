// Package telemetry reads hardware and workload signals into immutable
// snapshots. Readers never fail: an unreadable source contributes its
// sentinel value.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type PowerSource string

const (
	PowerUnknown PowerSource = "unknown"
	PowerAC      PowerSource = "ac"
	PowerBattery PowerSource = "battery"
)

// Sentinels for unavailable sources.
const (
	NoBattery     = -1
	NoTemperature = 0
)

// GPUReading is the GPU part of a snapshot. Present is false when no GPU
// could be queried; all other fields are then zero.
type GPUReading struct {
	Present     bool `json:"present"`
	Utilization int  `json:"utilization"`
	VRAMUsedMB  int  `json:"vram_used_mb"`
	VRAMTotalMB int  `json:"vram_total_mb"`
	Temperature int  `json:"temperature"`
}

// PowerReading is the power-supply part of a snapshot.
type PowerReading struct {
	Source         PowerSource
	BatteryPercent int
}

// Snapshot is one poll tick worth of telemetry. It is built once by the
// Reader and must not be modified afterwards.
type Snapshot struct {
	Power          PowerSource `json:"power"`
	BatteryPercent int         `json:"battery_percent"`
	GPU            GPUReading  `json:"gpu"`
	CPUTemperature int         `json:"cpu_temperature"`
	// Workloads maps a signature set name to the identities of matching
	// processes, sorted.
	Workloads  map[string][]string `json:"workloads"`
	CapturedAt time.Time           `json:"captured_at"`
}

// Matched returns how many processes matched the named signature set.
func (s Snapshot) Matched(signature string) int {
	return len(s.Workloads[signature])
}

// Summary renders a compact one-line description used in history records.
func (s Snapshot) Summary() string {
	var b strings.Builder

	if s.GPU.Present {
		fmt.Fprintf(&b, "gpu=%d%% vram=%d/%dMB gpu_temp=%dC ",
			s.GPU.Utilization, s.GPU.VRAMUsedMB, s.GPU.VRAMTotalMB, s.GPU.Temperature)
	} else {
		b.WriteString("gpu=absent ")
	}
	fmt.Fprintf(&b, "cpu_temp=%dC power=%s", s.CPUTemperature, s.Power)
	if s.BatteryPercent != NoBattery {
		fmt.Fprintf(&b, " battery=%d%%", s.BatteryPercent)
	}

	names := make([]string, 0, len(s.Workloads))
	for name, procs := range s.Workloads {
		if len(procs) > 0 {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s:%d", name, len(s.Workloads[name]))
		}
		fmt.Fprintf(&b, " workloads=%s", strings.Join(parts, ","))
	}

	return b.String()
}
