package telemetry

import "codeberg.org/mutker/mccli/internal/errors"

const (
	// Log Errors
	ErrLogClosed = errors.ErrLogClosed
)
