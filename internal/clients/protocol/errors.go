package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
)

// Kind classifies adapter failures so callers can decide what is retryable
// and what must surface to the user.
type Kind string

const (
	// KindConnectivity covers network, DNS and TLS failures. Retryable.
	KindConnectivity Kind = "connectivity"
	// KindAuth means the configured credentials were rejected. Never retried
	// automatically.
	KindAuth Kind = "auth"
	// KindTimeout means the bounded wait elapsed. Retryable with backoff at
	// the caller's discretion.
	KindTimeout Kind = "timeout"
	// KindProtocol means the remote answered with something we could not
	// parse or did not expect.
	KindProtocol Kind = "protocol"
	// KindSubmit means the client rejected the submission itself, e.g. a
	// duplicate torrent. Soft failure.
	KindSubmit Kind = "submit"
)

// Error is the shared failure type returned by every protocol adapter.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind from an adapter error chain.
// Unclassified errors report as KindProtocol.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProtocol
}

// IsRetryable reports whether the error is transient enough that a later
// attempt could succeed without any configuration change.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConnectivity, KindTimeout:
		return true
	}
	return false
}

// ClassifyTransport wraps a transport-level error from net/http into the
// taxonomy: deadline overruns become KindTimeout, everything else that
// happened before a response arrived is KindConnectivity.
func ClassifyTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewError(KindTimeout, op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return NewError(KindTimeout, op, err)
	}
	return NewError(KindConnectivity, op, err)
}

// ClassifyStatus maps an unexpected HTTP status to the taxonomy.
func ClassifyStatus(op string, code int) *Error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewError(KindAuth, op, fmt.Errorf("status %d", code))
	case http.StatusConflict:
		return NewError(KindSubmit, op, fmt.Errorf("status %d", code))
	}
	return NewError(KindProtocol, op, fmt.Errorf("unexpected status %d", code))
}
