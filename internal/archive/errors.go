package archive

import "codeberg.org/voltaic/psuctl/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrConfig
	ErrInvalidDBPath = errors.ErrorCode("archive_invalid_db_path")

	// Schema errors
	ErrSchemaInitFailed       = errors.ErrorCode("archive_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("archive_schema_validation_failed")
	ErrSchemaMismatch         = errors.ErrorCode("archive_schema_mismatch")
	ErrTransactionFailed      = errors.ErrorCode("archive_transaction_failed")

	// Storage errors
	ErrStorageInit   = errors.ErrorCode("archive_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("archive_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("archive_storage_close_failed")

	// Service errors
	ErrInvalidSession   = errors.ErrorCode("archive_invalid_session")
	ErrOperationAborted = errors.ErrorCode("archive_operation_aborted")
)
