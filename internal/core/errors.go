package core

import (
	"errors"
	"fmt"
)

// ErrNoClientAvailable means no enabled download client matches the
// release's protocol. A configuration gap, surfaced to the user, never
// retried.
var ErrNoClientAvailable = errors.New("no enabled download client available for protocol")

// ErrNoIndexerAvailable means no enabled indexer exists to search.
var ErrNoIndexerAvailable = errors.New("no enabled indexer configured")

// DispatchError is a submission failure. Reason is a short machine-usable
// string (the failure kind), Err carries the detail.
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dispatch failed: %s", e.Reason)
	}
	return fmt.Sprintf("dispatch failed (%s): %v", e.Reason, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
