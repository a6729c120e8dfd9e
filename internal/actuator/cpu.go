package actuator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/profile"
)

// CPU drives core hotplug and cpufreq policy through sysfs.
type CPU struct {
	sysRoot string
	timeout time.Duration
}

func NewCPU(sysRoot string, timeout time.Duration) *CPU {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	return &CPU{sysRoot: sysRoot, timeout: timeout}
}

func (c *CPU) Name() string {
	return "cpu"
}

func (c *CPU) cpuRoot() string {
	return filepath.Join(c.sysRoot, "devices", "system", "cpu")
}

func (c *CPU) cpuDir(n int) string {
	return filepath.Join(c.cpuRoot(), "cpu"+strconv.Itoa(n))
}

// presentCPUs returns every CPU the kernel knows about, online or not.
// cpuinfo only lists online CPUs, so it cannot be used to bring cores
// back. An empty set means presence is unknown.
func (c *CPU) presentCPUs() map[int]bool {
	present := make(map[int]bool)

	if data, err := os.ReadFile(filepath.Join(c.cpuRoot(), "present")); err == nil {
		if cpus, err := profile.ParseCPUList(strings.TrimSpace(string(data))); err == nil {
			for _, n := range cpus {
				present[n] = true
			}
			return present
		}
	}

	dirs, _ := filepath.Glob(filepath.Join(c.cpuRoot(), "cpu[0-9]*"))
	for _, dir := range dirs {
		if n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "cpu")); err == nil {
			present[n] = true
		}
	}

	return present
}

func (c *CPU) Apply(ctx context.Context, p profile.Profile) []Result {
	var results []Result

	present := c.presentCPUs()

	hotplug := func(n int, value string) {
		directive := fmt.Sprintf("cpu%d/online", n)
		res := Result{Actuator: c.Name(), Directive: directive, Value: value}

		switch {
		case len(present) > 0 && !present[n]:
			res.Err = errors.New().WithData(errors.ErrActuatorWrite, fmt.Sprintf("cpu%d not present", n))
		case n == 0 && value == "0":
			res.Err = errors.New().WithData(errors.ErrActuatorWrite, "cpu0 cannot be taken offline")
		case n == 0 && !exists(filepath.Join(c.cpuDir(0), "online")):
			// boot CPU without hotplug support is always online
			return
		default:
			res.Err = writeValue(ctx, c.timeout, filepath.Join(c.cpuDir(n), "online"), value)
		}
		results = append(results, res)
	}

	for _, n := range p.OnlineCores() {
		hotplug(n, "1")
	}
	for _, n := range p.OfflineCores() {
		hotplug(n, "0")
	}

	if p.Governor == "" && p.EPP == "" && p.MinFreqMHz == 0 && p.MaxFreqMHz == 0 {
		return results
	}

	for _, n := range c.onlineCPUs() {
		dir := filepath.Join(c.cpuDir(n), "cpufreq")
		write := func(attr, value string) error {
			err := writeValue(ctx, c.timeout, filepath.Join(dir, attr), value)
			results = append(results, Result{
				Actuator:  c.Name(),
				Directive: fmt.Sprintf("cpu%d/%s", n, attr),
				Value:     value,
				Err:       err,
			})
			return err
		}

		if p.Governor != "" {
			_ = write("scaling_governor", p.Governor)
		}
		if p.EPP != "" {
			_ = write("energy_performance_preference", p.EPP)
		}

		// raising the floor above the current ceiling fails, so the
		// ceiling goes first and is retried once after the floor
		maxFailed := false
		if p.MaxFreqMHz > 0 {
			maxFailed = write("scaling_max_freq", strconv.Itoa(p.MaxFreqMHz*1000)) != nil
		}
		if p.MinFreqMHz > 0 {
			_ = write("scaling_min_freq", strconv.Itoa(p.MinFreqMHz*1000))
		}
		if maxFailed && p.MinFreqMHz > 0 {
			if err := writeValue(ctx, c.timeout, filepath.Join(dir, "scaling_max_freq"), strconv.Itoa(p.MaxFreqMHz*1000)); err == nil {
				dropFailure(results, fmt.Sprintf("cpu%d/scaling_max_freq", n))
			}
		}
	}

	return results
}

func (c *CPU) Verify(ctx context.Context, p profile.Profile) []string {
	var mismatches []string

	for _, n := range p.OnlineCores() {
		switch state, ok := c.onlineState(ctx, n); {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("cpu%d state unreadable", n))
		case state != "1":
			mismatches = append(mismatches, fmt.Sprintf("cpu%d offline, want online", n))
		}
	}
	for _, n := range p.OfflineCores() {
		switch state, ok := c.onlineState(ctx, n); {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("cpu%d state unreadable", n))
		case state != "0":
			mismatches = append(mismatches, fmt.Sprintf("cpu%d online, want offline", n))
		}
	}

	if p.Governor != "" {
		got, err := readValue(ctx, c.timeout, filepath.Join(c.cpuDir(0), "cpufreq", "scaling_governor"))
		if err != nil {
			mismatches = append(mismatches, "cpu0 governor unreadable")
		} else if got != p.Governor {
			mismatches = append(mismatches, fmt.Sprintf("cpu0 governor %s, want %s", got, p.Governor))
		}
	}

	return mismatches
}

// onlineState returns the content of cpuN/online. The boot CPU has no
// such file and reports "1".
func (c *CPU) onlineState(ctx context.Context, n int) (string, bool) {
	state, err := readValue(ctx, c.timeout, filepath.Join(c.cpuDir(n), "online"))
	if err != nil {
		if n == 0 {
			return "1", true
		}
		return "", false
	}
	return state, true
}

// onlineCPUs lists the CPUs currently online according to sysfs.
func (c *CPU) onlineCPUs() []int {
	dirs, _ := filepath.Glob(filepath.Join(c.cpuRoot(), "cpu[0-9]*"))

	var cpus []int
	for _, dir := range dirs {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "cpu"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, "online"))
		if err == nil && strings.TrimSpace(string(data)) != "1" {
			continue
		}
		cpus = append(cpus, n)
	}
	sort.Ints(cpus)

	return cpus
}

func dropFailure(results []Result, directive string) {
	for i := range results {
		if results[i].Directive == directive {
			results[i].Err = nil
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
