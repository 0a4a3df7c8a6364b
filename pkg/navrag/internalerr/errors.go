package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("knowledge store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCancelled        = errors.New("analysis cancelled")
)
