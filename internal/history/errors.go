package history

import "codeberg.org/mutker/powergov/internal/errors"

const (
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrSchemaMismatch         = errors.ErrorCode("history_schema_mismatch")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrQueryFailed  = errors.ErrorCode("history_query_failed")
	ErrReadOnly     = errors.ErrorCode("history_read_only")

	ErrInvalidRecord = errors.ErrorCode("history_invalid_record")
)
