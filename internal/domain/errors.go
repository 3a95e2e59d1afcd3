package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("status changed concurrently")
	ErrDuplicateCode           = errors.New("ticket code already exists")
	ErrDuplicateUnit           = errors.New("ticket unit already issued")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrInvalidInput            = errors.New("invalid input")
	ErrMissingIdempotencyKey   = errors.New("payment event has no idempotency key")
	ErrIdempotencyMismatch     = errors.New("idempotency key reused for a different purchase")
	ErrCodeSpaceExhausted      = errors.New("could not allocate a unique ticket code")
	ErrIncompleteIssuance      = errors.New("ticket batch incomplete")
	ErrEventClosed             = errors.New("event is not on sale")
)
