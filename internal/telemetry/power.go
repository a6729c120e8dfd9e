package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PowerSupplyReader reads /sys/class/power_supply.
type PowerSupplyReader struct {
	sysRoot string
}

func NewPowerSupplyReader(sysRoot string) *PowerSupplyReader {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	return &PowerSupplyReader{sysRoot: sysRoot}
}

// ReadPower never returns an error; an absent power_supply class yields
// PowerUnknown and NoBattery.
func (r *PowerSupplyReader) ReadPower(ctx context.Context) (PowerReading, error) {
	reading := PowerReading{Source: PowerUnknown, BatteryPercent: NoBattery}

	supplies, err := filepath.Glob(filepath.Join(r.sysRoot, "class", "power_supply", "*"))
	if err != nil || len(supplies) == 0 {
		return reading, nil
	}

	var sawMains, mainsOnline bool
	batteryStatus := ""

	for _, dir := range supplies {
		if ctx.Err() != nil {
			return reading, ctx.Err()
		}

		switch readTrimmed(filepath.Join(dir, "type")) {
		case "Mains", "USB":
			sawMains = true
			if readTrimmed(filepath.Join(dir, "online")) == "1" {
				mainsOnline = true
			}
		case "Battery":
			if readTrimmed(filepath.Join(dir, "scope")) == "Device" {
				// peripheral batteries (mice, headsets)
				continue
			}
			if capacity, err := strconv.Atoi(readTrimmed(filepath.Join(dir, "capacity"))); err == nil {
				reading.BatteryPercent = capacity
			}
			batteryStatus = readTrimmed(filepath.Join(dir, "status"))
		}
	}

	switch {
	case mainsOnline:
		reading.Source = PowerAC
	case sawMains && reading.BatteryPercent != NoBattery:
		reading.Source = PowerBattery
	case batteryStatus == "Discharging":
		reading.Source = PowerBattery
	case batteryStatus == "Charging" || batteryStatus == "Full":
		reading.Source = PowerAC
	}

	return reading, nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
