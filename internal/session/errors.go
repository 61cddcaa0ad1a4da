package session

import "errors"

var (
	// ErrNotFound indicates the session ID does not exist in cache or store.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidSessionID indicates a malformed session identifier.
	ErrInvalidSessionID = errors.New("invalid session ID")

	// ErrInvalidLevel indicates an unknown privacy level.
	ErrInvalidLevel = errors.New("invalid privacy level")
)
