package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailure     = errors.New("provider failure")
	// ErrItemLocked is returned when deleting a batch item that already owns
	// a generation job; the debit exists, so the job must reach a terminal
	// state first.
	ErrItemLocked = errors.New("batch item locked by dispatched job")
)
