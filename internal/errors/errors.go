package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a relay error for dispatch decisions. Callers branch on
// the kind, never on message text.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no classification
	KindUnknown Kind = iota

	// KindValidation marks a request rejected before dispatch
	KindValidation

	// KindRateLimited marks a backend that refused work due to rate budget
	KindRateLimited

	// KindCircuitOpen marks a backend skipped because its circuit is open
	KindCircuitOpen

	// KindBackendTransient marks a retryable backend failure
	KindBackendTransient

	// KindBackendFatal marks a non-retryable backend failure that aborts the chain
	KindBackendFatal

	// KindAllBackendsFailed marks exhaustion of every candidate backend
	KindAllBackendsFailed

	// KindDeadlineExceeded marks a caller deadline hit mid-dispatch
	KindDeadlineExceeded
)

// String returns the kind name used in logs and wire payloads.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindCircuitOpen:
		return "circuit_open"
	case KindBackendTransient:
		return "backend_transient"
	case KindBackendFatal:
		return "backend_fatal"
	case KindAllBackendsFailed:
		return "all_backends_failed"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its string name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON decodes a kind from its string name. Unknown names map to
// KindUnknown rather than failing the payload.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	*k = kindFromString(name)

	return nil
}

func kindFromString(name string) Kind {
	switch name {
	case "validation":
		return KindValidation
	case "rate_limited":
		return KindRateLimited
	case "circuit_open":
		return KindCircuitOpen
	case "backend_transient":
		return KindBackendTransient
	case "backend_fatal":
		return KindBackendFatal
	case "all_backends_failed":
		return KindAllBackendsFailed
	case "deadline_exceeded":
		return KindDeadlineExceeded
	default:
		return KindUnknown
	}
}

// records one backend's failure inside an aggregate error
type BackendFailure struct {
	Backend string `json:"backend"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Error is the relay error type. One struct covers the whole taxonomy;
// which fields are set depends on the kind.
type Error struct {
	Kind    Kind
	Backend string
	Message string

	// RetryAfter is the suggested wait before retrying (rate limit, open circuit)
	RetryAfter time.Duration

	// Failures lists per-backend outcomes for KindAllBackendsFailed
	Failures []BackendFailure

	// Inner is the underlying error, if any
	Inner error
}

// Error returns the error message.
func (e *Error) Error() string {
	var sb strings.Builder

	if e.Backend != "" {
		sb.WriteString("backend ")
		sb.WriteString(e.Backend)
		sb.WriteString(": ")
	}

	sb.WriteString(e.Message)

	if e.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf(", retry after %s", e.RetryAfter))
	}

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Validation creates a request validation error.
func Validation(message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
	}
}

// Validationf creates a request validation error with formatting.
func Validationf(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// RateLimited creates a rate budget error for a backend.
func RateLimited(backend string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Backend:    backend,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// CircuitOpen creates an open circuit error for a backend.
func CircuitOpen(backend string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindCircuitOpen,
		Backend:    backend,
		Message:    "circuit open",
		RetryAfter: retryAfter,
	}
}

// Transient creates a retryable backend failure.
func Transient(backend, message string, inner error) *Error {
	return &Error{
		Kind:    KindBackendTransient,
		Backend: backend,
		Message: message,
		Inner:   inner,
	}
}

// Fatal creates a non-retryable backend failure.
func Fatal(backend, message string, inner error) *Error {
	return &Error{
		Kind:    KindBackendFatal,
		Backend: backend,
		Message: message,
		Inner:   inner,
	}
}

// AllFailed creates the aggregate error raised when every candidate failed.
func AllFailed(failures []BackendFailure) *Error {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", f.Backend, f.Message, f.Kind))
	}

	message := "no candidate backends available"
	if len(failures) > 0 {
		message = fmt.Sprintf("all %d candidate backends failed: %s", len(failures), strings.Join(parts, "; "))
	}

	return &Error{
		Kind:     KindAllBackendsFailed,
		Message:  message,
		Failures: failures,
	}
}

// DeadlineExceeded creates an error for a caller deadline hit mid-dispatch.
func DeadlineExceeded(inner error) *Error {
	return &Error{
		Kind:    KindDeadlineExceeded,
		Message: "deadline exceeded before a backend responded",
		Inner:   inner,
	}
}

// AsError extracts the relay error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}

	return nil, false
}

// KindOf extracts the kind from an error chain.
// Returns KindUnknown for untyped errors.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}

	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether dispatch may continue to the next candidate
// after this error.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindCircuitOpen, KindBackendTransient:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the suggested retry delay, or zero.
func RetryAfterOf(err error) time.Duration {
	if e, ok := AsError(err); ok {
		return e.RetryAfter
	}

	return 0
}

// FailuresOf returns the per-backend failure list from an aggregate error.
func FailuresOf(err error) []BackendFailure {
	if e, ok := AsError(err); ok {
		return e.Failures
	}

	return nil
}

// FailureFrom converts an error attributed to a backend into an aggregate entry.
func FailureFrom(backend string, err error) BackendFailure {
	if e, ok := AsError(err); ok {
		b := e.Backend
		if b == "" {
			b = backend
		}

		return BackendFailure{
			Backend: b,
			Kind:    e.Kind,
			Message: e.Message,
		}
	}

	return BackendFailure{
		Backend: backend,
		Kind:    KindUnknown,
		Message: err.Error(),
	}
}
