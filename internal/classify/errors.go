package classify

import "codeberg.org/mutker/powergov/internal/errors"

const (
	ErrInvalidTrigger  = errors.ErrorCode("classify_invalid_trigger")
	ErrInvalidCategory = errors.ErrorCode("classify_invalid_category")
	ErrInvalidPriority = errors.ErrorCode("classify_invalid_priority")
)
