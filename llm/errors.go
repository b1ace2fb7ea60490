package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider errors by kind rather than by distinct Go
// types. All provider-originated errors carry provider+model context and
// wrap the underlying vendor error so callers can inspect it without the
// core's public API ever surfacing a vendor-specific type.
type ErrorKind string

const (
	KindAuthentication       ErrorKind = "authentication"
	KindRateLimit            ErrorKind = "rate_limit"
	KindModelNotFound        ErrorKind = "model_not_found"
	KindContextLength        ErrorKind = "context_length"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindProviderConnection   ErrorKind = "provider_connection"
	KindProviderTimeout      ErrorKind = "provider_timeout"
	KindServiceUnavailable   ErrorKind = "service_unavailable"
	KindEmptyResponse        ErrorKind = "empty_response"
	KindStructuredOutput     ErrorKind = "structured_output"
	KindToolNotFound         ErrorKind = "tool_not_found"
	KindConfirmationRequired ErrorKind = "confirmation_required"
	KindConfirmationFailed   ErrorKind = "confirmation_failed"
)

// Error is the single error type the core's public API surfaces. Vendor
// errors are always wrapped, never returned directly.
type Error struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s/%s)", e.Kind, e.Message, e.Provider, e.Model)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s/%s)", e.Kind, e.Err, e.Provider, e.Model)
	}
	return fmt.Sprintf("%s (%s/%s)", e.Kind, e.Provider, e.Model)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, provider, model string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Model: model, Err: err}
}

func NewErrorf(kind ErrorKind, provider, model, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Model: model, Message: fmt.Sprintf(format, args...)}
}

// Retriable reports whether err's Kind is in the retriable class:
// rate-limit, timeout, connection, service-unavailable, empty response,
// and (by explicit policy, see DESIGN.md) invalid-request.
func Retriable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRateLimit, KindProviderTimeout, KindProviderConnection,
		KindServiceUnavailable, KindEmptyResponse, KindInvalidRequest:
		return true
	default:
		return false
	}
}

// NonRetriableProviderError reports whether err is a provider error that
// the retry policy skips straight to fallback for: auth, model-not-found,
// context-length.
func NonRetriableProviderError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindAuthentication, KindModelNotFound, KindContextLength:
		return true
	default:
		return false
	}
}

// StructuredOutputError is returned when GenerateStructured exhausts its
// retry budget; it carries the last raw response and last validation error
// for diagnosis.
type StructuredOutputError struct {
	Provider        string
	Model           string
	LastRawResponse string
	ValidationErr   error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output validation failed after retries (%s/%s): %v", e.Provider, e.Model, e.ValidationErr)
}

func (e *StructuredOutputError) Unwrap() error { return e.ValidationErr }
