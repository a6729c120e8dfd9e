package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSys(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(map[string][]string{
		"ai":     {"ollama", "python -m vllm"},
		"gaming": {"steam", "  "},
		"empty":  {},
	})

	assert.False(t, m.Empty())
	assert.True(t, m.NeedsCmdline())

	got := m.Match([]Process{
		{PID: 20, Name: "ollama", Cmdline: "/usr/bin/ollama serve"},
		{PID: 10, Name: "Ollama-runner"},
		{PID: 30, Name: "python3", Cmdline: "python -m vllm.entrypoints"},
		{PID: 40, Name: "bash", Cmdline: "bash"},
		{PID: 50, Name: "steamwebhelper"},
	})

	assert.Equal(t, []string{"Ollama-runner(10)", "ollama(20)", "python3(30)"}, got["ai"])
	assert.Equal(t, []string{"steamwebhelper(50)"}, got["gaming"])
	assert.NotContains(t, got, "empty")
}

func TestMatcherNameOnly(t *testing.T) {
	m := NewMatcher(map[string][]string{"render": {"blender"}})
	assert.False(t, m.NeedsCmdline())

	// cmdline is not inspected for plain patterns
	got := m.Match([]Process{{PID: 1, Name: "sh", Cmdline: "sh -c blender"}})
	assert.Empty(t, got)

	assert.True(t, NewMatcher(nil).Empty())
}

func TestSnapshotSummary(t *testing.T) {
	snap := Snapshot{
		Power:          PowerBattery,
		BatteryPercent: 42,
		GPU:            GPUReading{Present: true, Utilization: 85, VRAMUsedMB: 2048, VRAMTotalMB: 8192, Temperature: 71},
		CPUTemperature: 64,
		Workloads:      map[string][]string{"ai": {"a(1)", "b(2)"}, "gaming": nil},
	}
	assert.Equal(t,
		"gpu=85% vram=2048/8192MB gpu_temp=71C cpu_temp=64C power=battery battery=42% workloads=ai:2",
		snap.Summary())
	assert.Equal(t, 2, snap.Matched("ai"))
	assert.Equal(t, 0, snap.Matched("coding"))

	absent := Snapshot{Power: PowerUnknown, BatteryPercent: NoBattery}
	assert.Equal(t, "gpu=absent cpu_temp=0C power=unknown", absent.Summary())
}

func TestPowerSupplyReader(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		source  PowerSource
		battery int
	}{
		{
			name:    "no power supply class",
			source:  PowerUnknown,
			battery: NoBattery,
		},
		{
			name: "desktop on mains",
			files: map[string]string{
				"class/power_supply/AC/type":   "Mains",
				"class/power_supply/AC/online": "1",
			},
			source:  PowerAC,
			battery: NoBattery,
		},
		{
			name: "laptop unplugged",
			files: map[string]string{
				"class/power_supply/AC/type":        "Mains",
				"class/power_supply/AC/online":      "0",
				"class/power_supply/BAT0/type":      "Battery",
				"class/power_supply/BAT0/capacity":  "37",
				"class/power_supply/BAT0/status":    "Discharging",
				"class/power_supply/hid-0/type":     "Battery",
				"class/power_supply/hid-0/scope":    "Device",
				"class/power_supply/hid-0/capacity": "90",
			},
			source:  PowerBattery,
			battery: 37,
		},
		{
			name: "battery status only",
			files: map[string]string{
				"class/power_supply/BAT1/type":     "Battery",
				"class/power_supply/BAT1/capacity": "100",
				"class/power_supply/BAT1/status":   "Full",
			},
			source:  PowerAC,
			battery: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeSys(t, root, tt.files)

			got, err := NewPowerSupplyReader(root).ReadPower(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.source, got.Source)
			assert.Equal(t, tt.battery, got.BatteryPercent)
		})
	}
}

func TestMaxCPUTemperature(t *testing.T) {
	stats := []host.TemperatureStat{
		{SensorKey: "coretemp_core_0", Temperature: 55},
		{SensorKey: "coretemp_package_id_0", Temperature: 61.7},
		{SensorKey: "nvme_composite", Temperature: 80},
		{SensorKey: "acpitz", Temperature: 90},
	}
	assert.Equal(t, 61, maxCPUTemperature(stats, defaultCPUSensorPrefixes))
	assert.Equal(t, NoTemperature, maxCPUTemperature(nil, defaultCPUSensorPrefixes))
}

func TestThermalReaderFallback(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{
		"class/thermal/thermal_zone0/type": "acpitz",
		"class/thermal/thermal_zone0/temp": "99000",
		"class/thermal/thermal_zone1/type": "x86_pkg_temp",
		"class/thermal/thermal_zone1/temp": "58500",
	})

	r := NewThermalReader(root, nil)
	r.sensors = func(context.Context) ([]host.TemperatureStat, error) {
		return nil, assert.AnError
	}

	temp, err := r.ReadCPUTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 58, temp)

	_, err = NewThermalReader(t.TempDir(), nil).withSensors(nil).ReadCPUTemperature(context.Background())
	assert.True(t, errors.HasCode(err, ErrSensorRead))
}

func (r *ThermalReader) withSensors(stats []host.TemperatureStat) *ThermalReader {
	r.sensors = func(context.Context) ([]host.TemperatureStat, error) {
		return stats, nil
	}
	return r
}

type fakeDevice struct {
	gpu.Device
	util    int
	utilErr error
	mem     gpu.MemoryInfo
	temp    gpu.Temperature
}

func (d *fakeDevice) Utilization() (int, error)             { return d.util, d.utilErr }
func (d *fakeDevice) Memory() (gpu.MemoryInfo, error)       { return d.mem, nil }
func (d *fakeDevice) Temperature() (gpu.Temperature, error) { return d.temp, nil }

func TestGPUReader(t *testing.T) {
	dev := &fakeDevice{util: 85, mem: gpu.MemoryInfo{UsedMB: 3000, TotalMB: 8000}, temp: 70}

	got, err := NewGPUReader(dev).ReadGPU(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GPUReading{Present: true, Utilization: 85, VRAMUsedMB: 3000, VRAMTotalMB: 8000, Temperature: 70}, got)

	_, err = NewGPUReader(nil).ReadGPU(context.Background())
	assert.True(t, errors.HasCode(err, ErrSourceUnavailable))

	dev.utilErr = assert.AnError
	_, err = NewGPUReader(dev).ReadGPU(context.Background())
	assert.Error(t, err)
}

type powerFunc func(ctx context.Context) (PowerReading, error)

func (f powerFunc) ReadPower(ctx context.Context) (PowerReading, error) { return f(ctx) }

type thermalFunc func(ctx context.Context) (int, error)

func (f thermalFunc) ReadCPUTemperature(ctx context.Context) (int, error) { return f(ctx) }

type gpuFunc func(ctx context.Context) (GPUReading, error)

func (f gpuFunc) ReadGPU(ctx context.Context) (GPUReading, error) { return f(ctx) }

type processFunc func(ctx context.Context) ([]Process, error)

func (f processFunc) ListProcesses(ctx context.Context) ([]Process, error) { return f(ctx) }

func TestReaderCombinesSources(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := NewReader(Sources{
		Power: powerFunc(func(context.Context) (PowerReading, error) {
			return PowerReading{Source: PowerAC, BatteryPercent: 80}, nil
		}),
		Thermal: thermalFunc(func(context.Context) (int, error) { return 65, nil }),
		GPU: gpuFunc(func(context.Context) (GPUReading, error) {
			return GPUReading{Present: true, Utilization: 40}, nil
		}),
		Processes: processFunc(func(context.Context) ([]Process, error) {
			return []Process{{PID: 7, Name: "ollama"}}, nil
		}),
		Matcher: NewMatcher(map[string][]string{"ai": {"ollama"}}),
	}, WithClock(clock.Fake(now)))

	snap := r.Read(context.Background())
	assert.Equal(t, PowerAC, snap.Power)
	assert.Equal(t, 80, snap.BatteryPercent)
	assert.Equal(t, 65, snap.CPUTemperature)
	assert.Equal(t, 40, snap.GPU.Utilization)
	assert.Equal(t, []string{"ollama(7)"}, snap.Workloads["ai"])
	assert.Equal(t, now, snap.CapturedAt)
}

func TestReaderSentinels(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	r := NewReader(Sources{
		Power: powerFunc(func(context.Context) (PowerReading, error) {
			return PowerReading{}, assert.AnError
		}),
		// ignores its context entirely
		Thermal: thermalFunc(func(context.Context) (int, error) {
			<-block
			return 99, nil
		}),
		GPU: gpuFunc(func(ctx context.Context) (GPUReading, error) {
			<-ctx.Done()
			return GPUReading{Present: true}, ctx.Err()
		}),
		Processes: processFunc(func(context.Context) ([]Process, error) {
			return nil, assert.AnError
		}),
		Matcher: NewMatcher(map[string][]string{"ai": {"ollama"}}),
	}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	snap := r.Read(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, PowerUnknown, snap.Power)
	assert.Equal(t, NoBattery, snap.BatteryPercent)
	assert.Equal(t, NoTemperature, snap.CPUTemperature)
	assert.False(t, snap.GPU.Present)
	assert.Empty(t, snap.Workloads)
	assert.NotNil(t, snap.Workloads)
}

func TestReaderNoSources(t *testing.T) {
	snap := NewReader(Sources{}).Read(context.Background())
	assert.Equal(t, PowerUnknown, snap.Power)
	assert.Equal(t, NoBattery, snap.BatteryPercent)
	assert.False(t, snap.GPU.Present)
}
