package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of a verification step.
type Kind string

const (
	// KindAuth indicates the token endpoint rejected the credentials or could not be reached.
	KindAuth Kind = "auth_error"
	// KindProvider indicates a 4xx/5xx response from a provider endpoint, including
	// errors the provider reported inside a response body.
	KindProvider Kind = "provider_error"
	// KindNetwork covers transport, DNS, timeout and cellular-unreachable failures.
	KindNetwork Kind = "network_error"
	// KindExchange indicates the provider refused an exchange code (reused, expired
	// or bound to another check).
	KindExchange Kind = "exchange_error"
	// KindProtocol indicates a response that did not have the expected shape.
	KindProtocol Kind = "protocol_error"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrAuth     = &Error{Kind: KindAuth}
	ErrProvider = &Error{Kind: KindProvider}
	ErrNetwork  = &Error{Kind: KindNetwork}
	ErrExchange = &Error{Kind: KindExchange}
	ErrProtocol = &Error{Kind: KindProtocol}
)

// Error is the single error type surfaced by provider calls.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with a non-zero
// Status additionally requires the status to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// KindOf reports the kind of err, or "" when err is not a provider error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(op, description string, cause error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Detail: description, Err: cause}
}

// NewProtocolError reports an unexpected response shape.
func NewProtocolError(op, detail string) *Error {
	return &Error{Kind: KindProtocol, Op: op, Detail: detail}
}
