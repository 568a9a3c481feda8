package errors

// Common error codes
const (
	// Session taxonomy: every failure shown to an operator is one of these.
	ErrConnection    ErrorCode = "connection_error"
	ErrCommunication ErrorCode = "communication_error"
	ErrExport        ErrorCode = "export_error"
	ErrConfig        ErrorCode = "config_error"

	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration plumbing errors
	ErrBindFlags  ErrorCode = "bind_flags_failed"
	ErrReadConfig ErrorCode = "read_config_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrConnection:      "Instrument connection failed",
	ErrCommunication:   "Instrument communication failed",
	ErrExport:          "Session export failed",
	ErrConfig:          "Invalid configuration",
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
