package actuator

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"codeberg.org/mutker/powergov/internal/profile"
)

// Memory writes VM sysctls under /proc/sys/vm and the transparent
// hugepage mode.
type Memory struct {
	procRoot string
	sysRoot  string
	timeout  time.Duration
}

func NewMemory(procRoot, sysRoot string, timeout time.Duration) *Memory {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	return &Memory{procRoot: procRoot, sysRoot: sysRoot, timeout: timeout}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) vmPath(name string) string {
	return filepath.Join(m.procRoot, "sys", "vm", name)
}

func (m *Memory) thpPath() string {
	return filepath.Join(m.sysRoot, "kernel", "mm", "transparent_hugepage", "enabled")
}

func (m *Memory) Apply(ctx context.Context, p profile.Profile) []Result {
	var results []Result

	sysctls := []struct {
		name  string
		value *int
	}{
		{"swappiness", p.Memory.Swappiness},
		{"vfs_cache_pressure", p.Memory.VFSCachePressure},
		{"dirty_ratio", p.Memory.DirtyRatio},
		{"dirty_background_ratio", p.Memory.DirtyBackgroundRatio},
	}
	for _, s := range sysctls {
		if s.value == nil {
			continue
		}
		value := strconv.Itoa(*s.value)
		results = append(results, Result{
			Actuator:  m.Name(),
			Directive: "vm." + s.name,
			Value:     value,
			Err:       writeValue(ctx, m.timeout, m.vmPath(s.name), value),
		})
	}

	if mode := p.Memory.TransparentHugepage; mode != "" {
		results = append(results, Result{
			Actuator:  m.Name(),
			Directive: "transparent_hugepage",
			Value:     mode,
			Err:       writeValue(ctx, m.timeout, m.thpPath(), mode),
		})
	}

	return results
}

func (m *Memory) Verify(ctx context.Context, p profile.Profile) []string {
	var mismatches []string

	if p.Memory.Swappiness != nil {
		got, err := readValue(ctx, m.timeout, m.vmPath("swappiness"))
		switch {
		case err != nil:
			mismatches = append(mismatches, "vm.swappiness unreadable")
		case got != strconv.Itoa(*p.Memory.Swappiness):
			mismatches = append(mismatches, fmt.Sprintf("vm.swappiness %s, want %d", got, *p.Memory.Swappiness))
		}
	}

	if mode := p.Memory.TransparentHugepage; mode != "" {
		raw, err := readValue(ctx, m.timeout, m.thpPath())
		if got := selectedValue(raw); err == nil && got != mode {
			mismatches = append(mismatches, fmt.Sprintf("transparent_hugepage %s, want %s", got, mode))
		}
	}

	return mismatches
}
