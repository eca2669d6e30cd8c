package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress is returned when a cycle is requested while one is
	// already running; cycles never overlap.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrOffline is returned when a cycle is requested while the engine
	// believes the device has no connectivity.
	ErrOffline = errors.New("device is offline")
	// ErrNoUser is returned when sync is attempted before a user signs in.
	ErrNoUser = errors.New("no authenticated user")
	// ErrUnauthorized means the stored token was rejected by the server.
	ErrUnauthorized = errors.New("unauthorized")
)

// TransportError wraps a failed HTTP exchange. Transport failures leave
// the queue untouched; items are retried on the next cycle.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync %s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
