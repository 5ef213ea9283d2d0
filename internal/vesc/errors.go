package vesc

import "codeberg.org/mutker/mccli/internal/errors"

const (
	ErrOpenFailed   = errors.ErrorCode("vesc_open_failed")
	ErrCloseFailed  = errors.ErrorCode("vesc_close_failed")
	ErrEncodeFailed = errors.ErrorCode("vesc_encode_failed")
	ErrWriteFailed  = errors.ErrorCode("vesc_write_failed")
	ErrReadFailed   = errors.ErrorCode("vesc_read_failed")
)
