package controller

import (
	"errors"

	"watrack/backend/internal/wa/registry"
)

var (
	// ErrSessionNotFound is returned when no session row exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyRunning is returned when a start races a running session.
	ErrAlreadyRunning = registry.ErrAlreadyRunning
	// ErrTransportUnavailable is returned by operations that need a live
	// connection when the session is not running or its socket is down.
	ErrTransportUnavailable = errors.New("session has no live connection")
)
