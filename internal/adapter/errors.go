package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an adapter failure for the orchestrator's retry/halt branch
type Kind int

const (
	// KindConnection is transient: unreachable host, TLS failure, timeout
	KindConnection Kind = iota
	// KindAuth is durable until credentials are refreshed or re-entered
	KindAuth
	// KindProtocol is an unexpected server response shape
	KindProtocol
	// KindConfig is a missing or invalid account setting; not retryable
	KindConfig
)

// String returns the kind's wire/log name
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// SyncError is the typed failure surfaced to the orchestrator. Retry and
// halt decisions branch on Kind, never on error text.
type SyncError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind
func NewError(kind Kind, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

// Classify wraps err with the failure kind inferred from its type and text.
// Already-classified errors pass through unchanged.
func Classify(op string, err error) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &SyncError{Kind: KindConnection, Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &SyncError{Kind: KindConnection, Op: op, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &SyncError{Kind: KindConnection, Op: op, Err: err}
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "authenticationfailed"),
		strings.Contains(text, "authentication failed"),
		strings.Contains(text, "invalid credentials"),
		strings.Contains(text, "authorize"),
		strings.Contains(text, "invalid_grant"):
		return &SyncError{Kind: KindAuth, Op: op, Err: err}
	case strings.Contains(text, "connection refused"),
		strings.Contains(text, "connection reset"),
		strings.Contains(text, "no such host"),
		strings.Contains(text, "i/o timeout"),
		strings.Contains(text, "tls"),
		strings.Contains(text, "broken pipe"),
		strings.Contains(text, "eof"):
		return &SyncError{Kind: KindConnection, Op: op, Err: err}
	default:
		// Unexpected server behavior: parse failures, BAD responses
		return &SyncError{Kind: KindProtocol, Op: op, Err: err}
	}
}

// KindOf extracts the failure kind, defaulting to connection for
// unclassified errors so they are retried rather than frozen
func KindOf(err error) Kind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return KindConnection
}

// IsAuth reports whether err is a credential failure
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}
