package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStatusMismatch means a conditional transition found the booking in
	// a different status than expected. Someone else moved it first.
	ErrStatusMismatch = errors.New("booking status changed concurrently")
)
