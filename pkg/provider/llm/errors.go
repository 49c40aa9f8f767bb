package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError describes a failed call against a completion backend.
// It carries the HTTP-style status code so callers can distinguish
// authentication problems from transient failures such as rate limits.
type ProviderError struct {
	// Provider is the short provider name (e.g. "openai").
	Provider string

	// StatusCode is the HTTP status returned by the backend, or 0 when the
	// failure happened before a response arrived (network error, timeout).
	StatusCode int

	// Message is the underlying error text.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a [*ProviderError] caused by the
// backend rejecting the request with 429 Too Many Requests.
func IsRateLimit(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests
}

// IsAuth reports whether err is a [*ProviderError] caused by missing or
// invalid credentials (401 or 403).
func IsAuth(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) &&
		(pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden)
}
