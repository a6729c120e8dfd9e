package profile

import "codeberg.org/mutker/powergov/internal/errors"

const (
	ErrEmptyCatalog    = errors.ErrorCode("profile_empty_catalog")
	ErrDuplicateName   = errors.ErrorCode("profile_duplicate_name")
	ErrMissingName     = errors.ErrorCode("profile_missing_name")
	ErrDefaultNotFound = errors.ErrorCode("profile_default_not_found")
	ErrDefaultLevel    = errors.ErrorCode("profile_default_not_least_intensive")
	ErrInvalidCPUList  = errors.ErrorCode("profile_invalid_cpu_list")
	ErrCoreOverlap     = errors.ErrorCode("profile_core_overlap")
	ErrInvalidClocks   = errors.ErrorCode("profile_invalid_gpu_clocks")
	ErrInvalidValue    = errors.ErrorCode("profile_invalid_value")
)
