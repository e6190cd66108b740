package store

import "errors"

var (
	// ErrConflict means another confirmed appointment already holds the slot.
	ErrConflict            = errors.New("slot already booked")
	ErrNotFound            = errors.New("appointment not found")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
)
