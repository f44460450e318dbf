package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures so callers can decide on retry,
// re-auth or surfacing without parsing message strings.
type ErrorKind string

const (
	ErrKindNetwork         ErrorKind = "network"
	ErrKindAPI             ErrorKind = "api"
	ErrKindRateLimit       ErrorKind = "rate_limit"
	ErrKindAuth            ErrorKind = "authentication"
	ErrKindInvalidRequest  ErrorKind = "invalid_request"
	ErrKindModelNotFound   ErrorKind = "model_not_found"
	ErrKindCancelled       ErrorKind = "cancelled"
	ErrKindProviderMissing ErrorKind = "provider_not_available"
	ErrKindUnknown         ErrorKind = "unknown"

	// ErrKindContextLength is reserved for context-window enforcement.
	// No adapter raises it today.
	ErrKindContextLength ErrorKind = "context_length_exceeded"
)

// ErrStreamClosed is returned by Recv after Close.
var ErrStreamClosed = errors.New("llm: stream closed")

// Error is the provider-agnostic error container for everything that can go
// wrong talking to an LLM endpoint.
type Error struct {
	Provider string
	Kind     ErrorKind

	// Code carries the provider HTTP status or error code, if any.
	Code    string
	Message string

	// RetryAfter is a backoff hint populated for rate-limit errors.
	RetryAfter time.Duration

	// Used and Max are populated for context-length errors (reserved).
	Used int
	Max  int

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may retry the same request.
// Network failures and rate limits are retryable; auth and request-shape
// failures are not.
func (e *Error) Retryable() bool {
	return e.Kind == ErrKindNetwork || e.Kind == ErrKindRateLimit
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func networkError(provider string, cause error) *Error {
	return &Error{Provider: provider, Kind: ErrKindNetwork, Cause: cause}
}

func apiError(provider, code, message string) *Error {
	return &Error{Provider: provider, Kind: ErrKindAPI, Code: code, Message: message}
}

func rateLimitError(provider string, retryAfter time.Duration) *Error {
	return &Error{
		Provider:   provider,
		Kind:       ErrKindRateLimit,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

func authError(provider, message string) *Error {
	return &Error{Provider: provider, Kind: ErrKindAuth, Message: message}
}

func cancelledError(provider string) *Error {
	return &Error{Provider: provider, Kind: ErrKindCancelled, Message: "request cancelled"}
}

// ProviderNotAvailable is returned by the registry on a lookup miss.
func ProviderNotAvailable(providerID string) *Error {
	return &Error{
		Provider: providerID,
		Kind:     ErrKindProviderMissing,
		Message:  fmt.Sprintf("provider %q not registered", providerID),
	}
}
