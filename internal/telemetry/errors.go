package telemetry

import "codeberg.org/mutker/powergov/internal/errors"

const (
	ErrSourceTimeout     = errors.ErrorCode("telemetry_source_timeout")
	ErrSourceUnavailable = errors.ErrorCode("telemetry_source_unavailable")
	ErrProcessList       = errors.ErrorCode("telemetry_process_list_failed")
	ErrSensorRead        = errors.ErrorCode("telemetry_sensor_read_failed")
)
