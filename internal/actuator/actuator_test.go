package actuator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gpu"
	"codeberg.org/mutker/powergov/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func buildProfile(t *testing.T, p profile.Profile) profile.Profile {
	t.Helper()
	c, err := profile.NewCatalog("", p)
	require.NoError(t, err)
	got, _ := c.Get(p.Name)
	return got
}

func cpuTree(t *testing.T, cpus int) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{}
	for n := 0; n < cpus; n++ {
		dir := filepath.Join("devices", "system", "cpu", "cpu"+string(rune('0'+n)))
		if n > 0 {
			files[filepath.Join(dir, "online")] = "1"
		}
		for _, attr := range []string{"scaling_governor", "energy_performance_preference", "scaling_min_freq", "scaling_max_freq"} {
			files[filepath.Join(dir, "cpufreq", attr)] = ""
		}
	}
	writeTree(t, root, files)
	return root
}

func newTestCPU(root string) *CPU {
	return NewCPU(root, time.Second)
}

func TestCPUApply(t *testing.T) {
	root := cpuTree(t, 4)
	c := newTestCPU(root)

	p := buildProfile(t, profile.Profile{
		Name:         "quiet",
		Governor:     "powersave",
		EPP:          "power",
		MinFreqMHz:   800,
		MaxFreqMHz:   2400,
		CoresOnline:  "0-1",
		CoresOffline: "2-3",
	})

	results := c.Apply(context.Background(), p)
	assert.Empty(t, Failures(results))

	assert.Equal(t, "1", readTree(t, root, "devices/system/cpu/cpu1/online"))
	assert.Equal(t, "0", readTree(t, root, "devices/system/cpu/cpu2/online"))
	assert.Equal(t, "0", readTree(t, root, "devices/system/cpu/cpu3/online"))

	// cpufreq policy only goes to CPUs left online
	assert.Equal(t, "powersave", readTree(t, root, "devices/system/cpu/cpu0/cpufreq/scaling_governor"))
	assert.Equal(t, "power", readTree(t, root, "devices/system/cpu/cpu1/cpufreq/energy_performance_preference"))
	assert.Equal(t, "800000", readTree(t, root, "devices/system/cpu/cpu1/cpufreq/scaling_min_freq"))
	assert.Equal(t, "2400000", readTree(t, root, "devices/system/cpu/cpu1/cpufreq/scaling_max_freq"))
	assert.Empty(t, readTree(t, root, "devices/system/cpu/cpu2/cpufreq/scaling_governor"))

	assert.Empty(t, c.Verify(context.Background(), p))
}

func TestCPUApplyBestEffort(t *testing.T) {
	root := cpuTree(t, 2)
	// no EPP support on cpu1
	require.NoError(t, os.Remove(filepath.Join(root, "devices/system/cpu/cpu1/cpufreq/energy_performance_preference")))
	c := newTestCPU(root)

	p := buildProfile(t, profile.Profile{
		Name:         "odd",
		Governor:     "performance",
		EPP:          "performance",
		CoresOffline: "0,5",
	})

	results := c.Apply(context.Background(), p)
	failures := Failures(results)
	require.Len(t, failures, 3)
	assert.Equal(t, "cpu0/online", failures[0].Directive)
	assert.Equal(t, "cpu5/online", failures[1].Directive)
	assert.Equal(t, "cpu1/energy_performance_preference", failures[2].Directive)
	assert.True(t, errors.HasCode(failures[2].Err, errors.ErrActuatorWrite))

	// the governor still reached every CPU
	assert.Equal(t, "performance", readTree(t, root, "devices/system/cpu/cpu0/cpufreq/scaling_governor"))
	assert.Equal(t, "performance", readTree(t, root, "devices/system/cpu/cpu1/cpufreq/scaling_governor"))
}

func TestCPUApplyBringsOfflineCoresBack(t *testing.T) {
	root := cpuTree(t, 8)
	writeTree(t, root, map[string]string{"devices/system/cpu/present": "0-7\n"})
	c := newTestCPU(root)

	quiet := buildProfile(t, profile.Profile{Name: "quiet", CoresOffline: "4-7"})
	require.Empty(t, Failures(c.Apply(context.Background(), quiet)))
	assert.Equal(t, "0", readTree(t, root, "devices/system/cpu/cpu5/online"))
	assert.Equal(t, []int{0, 1, 2, 3}, c.onlineCPUs())

	// offline cores are still present and must come back
	full := buildProfile(t, profile.Profile{Name: "full", CoresOnline: "0-7"})
	results := c.Apply(context.Background(), full)
	assert.Empty(t, Failures(results))
	for _, n := range []string{"4", "5", "6", "7"} {
		assert.Equal(t, "1", readTree(t, root, "devices/system/cpu/cpu"+n+"/online"))
	}
	assert.Empty(t, c.Verify(context.Background(), full))
}

func TestCPUPresentFallsBackToSysfsDirs(t *testing.T) {
	root := cpuTree(t, 3)
	writeTree(t, root, map[string]string{"devices/system/cpu/cpu2/online": "0"})

	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, newTestCPU(root).presentCPUs())

	writeTree(t, root, map[string]string{"devices/system/cpu/present": "0-1\n"})
	assert.Equal(t, map[int]bool{0: true, 1: true}, newTestCPU(root).presentCPUs())
}

func TestCPUVerifyMismatch(t *testing.T) {
	root := cpuTree(t, 4)
	writeTree(t, root, map[string]string{
		"devices/system/cpu/cpu0/cpufreq/scaling_governor": "schedutil\n",
		"devices/system/cpu/cpu3/online":                   "1\n",
	})
	c := newTestCPU(root)

	p := buildProfile(t, profile.Profile{Name: "x", Governor: "powersave", CoresOnline: "0-2", CoresOffline: "3"})
	assert.Equal(t, []string{
		"cpu3 online, want offline",
		"cpu0 governor schedutil, want powersave",
	}, c.Verify(context.Background(), p))
}

type fakeGPU struct {
	gpu.Device

	powerErr   error
	clockErr   error
	fanErr     error
	limit      gpu.PowerLimit
	limits     gpu.PowerLimits
	locked     *profile.ClockRange
	fanSpeed   gpu.FanSpeed
	autoFans   bool
	resetCalls int
	block      chan struct{}
}

func (f *fakeGPU) SetPowerLimit(l gpu.PowerLimit) error {
	if f.powerErr != nil {
		return f.powerErr
	}
	f.limit = clampLimit(l, f.limits)
	return nil
}

func (f *fakeGPU) ResetPowerLimit() error {
	f.resetCalls++
	if f.powerErr != nil {
		return f.powerErr
	}
	f.limit = f.limits.Default
	return nil
}

func (f *fakeGPU) PowerLimit() (gpu.PowerLimit, error)   { return f.limit, f.powerErr }
func (f *fakeGPU) PowerLimits() (gpu.PowerLimits, error) { return f.limits, f.powerErr }

func (f *fakeGPU) LockClocks(minMHz, maxMHz int) error {
	if f.block != nil {
		<-f.block
	}
	if f.clockErr != nil {
		return f.clockErr
	}
	f.locked = &profile.ClockRange{MinMHz: minMHz, MaxMHz: maxMHz}
	return nil
}

func (f *fakeGPU) UnlockClocks() error {
	if f.clockErr != nil {
		return f.clockErr
	}
	f.locked = nil
	return nil
}

func (f *fakeGPU) SetFanSpeed(s gpu.FanSpeed) error {
	if f.fanErr != nil {
		return f.fanErr
	}
	f.fanSpeed = s
	f.autoFans = false
	return nil
}

func (f *fakeGPU) EnableAutoFanControl() error {
	if f.fanErr != nil {
		return f.fanErr
	}
	f.autoFans = true
	return nil
}

func TestGPUApply(t *testing.T) {
	dev := &fakeGPU{limits: gpu.PowerLimits{Min: 60, Max: 200, Default: 170}}
	a := NewGPU(dev, time.Second)

	boost := buildProfile(t, profile.Profile{
		Name:          "boost",
		GPUPowerLimit: 250,
		GPUClocks:     &profile.ClockRange{MinMHz: 1500, MaxMHz: 2100},
		GPUFanSpeed:   profile.IntPtr(80),
	})
	results := a.Apply(context.Background(), boost)
	assert.Len(t, results, 3)
	assert.Empty(t, Failures(results))
	assert.Equal(t, gpu.PowerLimit(200), dev.limit)
	assert.Equal(t, &profile.ClockRange{MinMHz: 1500, MaxMHz: 2100}, dev.locked)
	assert.Equal(t, gpu.FanSpeed(80), dev.fanSpeed)
	assert.Empty(t, a.Verify(context.Background(), boost))

	idle := buildProfile(t, profile.Profile{Name: "idle"})
	assert.Empty(t, Failures(a.Apply(context.Background(), idle)))
	assert.Equal(t, gpu.PowerLimit(170), dev.limit)
	assert.Nil(t, dev.locked)
	assert.True(t, dev.autoFans)
}

func TestGPUApplyUnsupportedControls(t *testing.T) {
	dev := &fakeGPU{
		powerErr: errors.New().New(gpu.ErrPowerUnsupported),
		clockErr: errors.New().New(gpu.ErrClocksUnsupported),
		fanErr:   errors.New().New(gpu.ErrFanUnsupported),
	}
	a := NewGPU(dev, time.Second)

	// restoring defaults is silently skipped
	results := a.Apply(context.Background(), buildProfile(t, profile.Profile{Name: "idle"}))
	assert.Empty(t, results)
	assert.Equal(t, 1, dev.resetCalls)

	// explicit values are reported
	results = a.Apply(context.Background(), buildProfile(t, profile.Profile{
		Name:          "boost",
		GPUPowerLimit: 150,
		GPUClocks:     &profile.ClockRange{MinMHz: 300, MaxMHz: 1500},
		GPUFanSpeed:   profile.IntPtr(70),
	}))
	failures := Failures(results)
	require.Len(t, failures, 3)
	assert.Equal(t, "power_limit", failures[0].Directive)
	assert.Equal(t, "locked_clocks", failures[1].Directive)
	assert.Equal(t, "fan_speed", failures[2].Directive)
}

func TestGPUApplyTimeout(t *testing.T) {
	dev := &fakeGPU{limits: gpu.PowerLimits{Min: 60, Max: 200, Default: 170}, block: make(chan struct{})}
	defer close(dev.block)

	a := NewGPU(dev, 20*time.Millisecond)
	results := a.Apply(context.Background(), buildProfile(t, profile.Profile{
		Name: "boost", GPUClocks: &profile.ClockRange{MinMHz: 1000, MaxMHz: 1500},
	}))

	failures := Failures(results)
	require.Len(t, failures, 1)
	assert.Equal(t, "locked_clocks", failures[0].Directive)
	assert.True(t, errors.HasCode(failures[0].Err, errors.ErrTimeout))
}

func TestGPUNilDevice(t *testing.T) {
	a := NewGPU(nil, time.Second)
	p := buildProfile(t, profile.Profile{Name: "boost", GPUPowerLimit: 100})
	assert.Empty(t, a.Apply(context.Background(), p))
	assert.Empty(t, a.Verify(context.Background(), p))
}

func TestMemoryApply(t *testing.T) {
	proc, sys := t.TempDir(), t.TempDir()
	writeTree(t, proc, map[string]string{
		"sys/vm/swappiness":         "60\n",
		"sys/vm/vfs_cache_pressure": "100\n",
		"sys/vm/dirty_ratio":        "20\n",
	})
	writeTree(t, sys, map[string]string{
		"kernel/mm/transparent_hugepage/enabled": "always [madvise] never\n",
	})
	m := NewMemory(proc, sys, time.Second)

	p := buildProfile(t, profile.Profile{
		Name: "perf",
		Memory: profile.Memory{
			Swappiness:           profile.IntPtr(10),
			DirtyRatio:           profile.IntPtr(40),
			DirtyBackgroundRatio: profile.IntPtr(10),
			TransparentHugepage:  "always",
		},
	})

	results := m.Apply(context.Background(), p)
	require.Len(t, results, 4)
	failures := Failures(results)
	require.Len(t, failures, 1)
	assert.Equal(t, "vm.dirty_background_ratio", failures[0].Directive)

	assert.Equal(t, "10", readTree(t, proc, "sys/vm/swappiness"))
	assert.Equal(t, "40", readTree(t, proc, "sys/vm/dirty_ratio"))
	assert.Equal(t, "100", readTree(t, proc, "sys/vm/vfs_cache_pressure"))

	// a regular file keeps the written word rather than the bracketed form
	assert.Empty(t, m.Verify(context.Background(), p))

	writeTree(t, proc, map[string]string{"sys/vm/swappiness": "60\n"})
	writeTree(t, sys, map[string]string{"kernel/mm/transparent_hugepage/enabled": "[always] madvise never\n"})
	assert.Equal(t, []string{"vm.swappiness 60, want 10"}, m.Verify(context.Background(), p))
}

func TestSelectedValue(t *testing.T) {
	assert.Equal(t, "madvise", selectedValue("always [madvise] never"))
	assert.Equal(t, "always", selectedValue("always"))
}

func TestDisplayApply(t *testing.T) {
	out := filepath.Join(t.TempDir(), "mode")
	d := NewDisplay([]string{"sh", "-c", `printf %s "$1" > ` + out, "set-mode"}, time.Second)

	assert.Empty(t, d.Apply(context.Background(), buildProfile(t, profile.Profile{Name: "none"})))

	results := d.Apply(context.Background(), buildProfile(t, profile.Profile{Name: "p", DisplayMode: "60hz"}))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "60hz", string(data))
}

func TestDisplayApplyFailures(t *testing.T) {
	p := buildProfile(t, profile.Profile{Name: "p", DisplayMode: "60hz"})

	results := NewDisplay(nil, time.Second).Apply(context.Background(), p)
	require.Len(t, results, 1)
	assert.True(t, errors.HasCode(results[0].Err, errors.ErrActuatorWrite))

	results = NewDisplay([]string{"sh", "-c", "echo no such output >&2; exit 3"}, time.Second).Apply(context.Background(), p)
	require.Len(t, results, 1)
	assert.True(t, errors.HasCode(results[0].Err, errors.ErrActuatorWrite))
	assert.Contains(t, results[0].Err.Error(), "no such output")

	results = NewDisplay([]string{"sleep", "5"}, 50*time.Millisecond).Apply(context.Background(), p)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
