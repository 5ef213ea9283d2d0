package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidRate     ErrorCode = "invalid_rate"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrUsage           ErrorCode = "usage"

	// Session errors
	ErrAlreadyRunning ErrorCode = "already_running"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Command errors
	ErrArgumentCount  ErrorCode = "argument_count_mismatch"
	ErrArgumentParse  ErrorCode = "argument_parse_failed"
	ErrUnknownCommand ErrorCode = "unknown_command"
	ErrDuplicateName  ErrorCode = "duplicate_command"

	// Device errors
	ErrDeviceIO           ErrorCode = "device_io_failed"
	ErrDeviceNotSupported ErrorCode = "device_not_supported"
	ErrDeviceNotOpen      ErrorCode = "device_not_open"
	ErrLogClosed          ErrorCode = "log_closed"

	// Export errors
	ErrExportInvalidField     ErrorCode = "export_invalid_field"
	ErrExportMissingParameter ErrorCode = "export_missing_parameter"
	ErrExportWrite            ErrorCode = "export_write_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:               "Internal error occurred",
	ErrInvalidArgument:        "Invalid argument provided",
	ErrInvalidConfig:          "Invalid configuration",
	ErrReadConfig:             "Failed to read configuration",
	ErrBindFlags:              "Failed to bind flags",
	ErrInvalidRate:            "Invalid rate value",
	ErrInvalidLogLevel:        "Invalid log level",
	ErrUsage:                  "Invalid usage",
	ErrAlreadyRunning:         "Another session is already running",
	ErrShutdownFailed:         "Shutdown failed",
	ErrArgumentCount:          "Wrong number of arguments",
	ErrArgumentParse:          "Failed to parse argument",
	ErrUnknownCommand:         "No matching command",
	ErrDuplicateName:          "Command registered twice",
	ErrDeviceIO:               "Device I/O failed",
	ErrDeviceNotSupported:     "Operation not supported by device",
	ErrDeviceNotOpen:          "Device is not open",
	ErrLogClosed:              "Event log is closed",
	ErrExportInvalidField:     "Unknown export field",
	ErrExportMissingParameter: "Missing export parameter",
	ErrExportWrite:            "Failed to write report",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
