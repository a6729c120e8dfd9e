package telemetry

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/shirou/gopsutil/v3/host"
)

var defaultCPUSensorPrefixes = []string{"coretemp", "k10temp", "zenpower", "x86_pkg_temp", "cpu"}

// ThermalReader reports the hottest CPU sensor in whole degrees Celsius.
type ThermalReader struct {
	sysRoot  string
	prefixes []string
	sensors  func(ctx context.Context) ([]host.TemperatureStat, error)
}

func NewThermalReader(sysRoot string, prefixes []string) *ThermalReader {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	if len(prefixes) == 0 {
		prefixes = defaultCPUSensorPrefixes
	}
	return &ThermalReader{
		sysRoot:  sysRoot,
		prefixes: prefixes,
		sensors:  host.SensorsTemperaturesWithContext,
	}
}

func (r *ThermalReader) ReadCPUTemperature(ctx context.Context) (int, error) {
	// gopsutil returns partial results together with a warnings error
	stats, _ := r.sensors(ctx)
	if temp := maxCPUTemperature(stats, r.prefixes); temp != NoTemperature {
		return temp, nil
	}

	if temp := r.readThermalZones(); temp != NoTemperature {
		return temp, nil
	}

	return NoTemperature, errors.New().WithData(ErrSensorRead, "no CPU temperature sensor")
}

func maxCPUTemperature(stats []host.TemperatureStat, prefixes []string) int {
	hottest := 0.0
	for _, s := range stats {
		key := strings.ToLower(s.SensorKey)
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				if s.Temperature > hottest {
					hottest = s.Temperature
				}
				break
			}
		}
	}

	return int(hottest)
}

// readThermalZones falls back to the x86 package thermal zone; its temp
// file is in millidegrees.
func (r *ThermalReader) readThermalZones() int {
	zones, err := filepath.Glob(filepath.Join(r.sysRoot, "class", "thermal", "thermal_zone*"))
	if err != nil {
		return NoTemperature
	}

	hottest := NoTemperature
	for _, z := range zones {
		if readTrimmed(filepath.Join(z, "type")) != "x86_pkg_temp" {
			continue
		}
		milli, err := strconv.Atoi(readTrimmed(filepath.Join(z, "temp")))
		if err != nil {
			continue
		}
		if c := milli / 1000; c > hottest {
			hottest = c
		}
	}

	return hottest
}
