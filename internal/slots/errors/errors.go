package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	// ErrNotAvailable means the requested interval is not tiled by open
	// slots: one is missing, misaligned or already locked.
	ErrNotAvailable = errors.New("slots not available for interval")
)
