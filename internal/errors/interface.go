package errors

// ErrorCode represents a unique identifier for each error type
type ErrorCode string

// Error is a coded error. Errors returned across package boundaries in
// powergov carry a code so callers can branch with HasCode.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory defines methods for creating domain errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
