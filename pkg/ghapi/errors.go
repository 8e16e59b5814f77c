package ghapi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// The error types below are the complete error surface of the client
// stack. Any transport or API failure is mapped onto one of these
// before it reaches a caller.

// ValidationError reports bad caller input, either detected locally
// (missing query) or returned by GitHub as a 422 response. Never
// retried and never cached.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

// FieldError describes a field-level validation failure from a 422
// response body.
type FieldError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (err *ValidationError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "ghapi: validation failed: %s", err.Message)
	for _, field := range err.Fields {
		if field.Message != "" {
			fmt.Fprintf(&builder, "; %s.%s: %s", field.Resource, field.Field, field.Message)
		} else {
			fmt.Fprintf(&builder, "; %s.%s: %s", field.Resource, field.Field, field.Code)
		}
	}
	return builder.String()
}

// AuthError reports a 401 response. Surfaced immediately, never
// retried.
type AuthError struct {
	Message string
}

func (err *AuthError) Error() string {
	return fmt.Sprintf("ghapi: authentication failed: %s", err.Message)
}

// RateLimitError reports an exhausted rate-limit quota, either from a
// 403/429 response with rate-limit headers or from the admission layer
// when no token has headroom and waiting is disabled.
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Message   string
}

func (err *RateLimitError) Error() string {
	return fmt.Sprintf("ghapi: rate limit exhausted (limit %d, resets %s): %s",
		err.Limit, err.ResetAt.Format(time.RFC3339), err.Message)
}

// APIError reports any other non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("ghapi: HTTP %d: %s", err.StatusCode, err.Message)
}

// TimeoutError reports a transport deadline exceeded. Counts as a
// failure for circuit breaking; never populates the cache.
type TimeoutError struct {
	URL string
	Err error
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("ghapi: request to %s timed out: %v", err.URL, err.Err)
}

func (err *TimeoutError) Unwrap() error { return err.Err }

// NetworkError reports a transport-level failure (DNS, connection
// refused). Same treatment as TimeoutError.
type NetworkError struct {
	URL string
	Err error
}

func (err *NetworkError) Error() string {
	return fmt.Sprintf("ghapi: request to %s failed: %v", err.URL, err.Err)
}

func (err *NetworkError) Unwrap() error { return err.Err }

// CircuitOpenError reports that the endpoint's circuit breaker is open
// and the call failed fast without a network attempt.
type CircuitOpenError struct {
	Endpoint Endpoint
	Until    time.Time
}

func (err *CircuitOpenError) Error() string {
	return fmt.Sprintf("ghapi: circuit open for %s until %s",
		err.Endpoint, err.Until.Format(time.RFC3339))
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// IsCircuitOpen reports whether err is a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return errors.As(err, &target)
}

// IsRetryable reports whether err is a transient failure (timeout,
// network, 5xx). Validation and auth errors are never retryable.
func IsRetryable(err error) bool {
	var timeoutErr *TimeoutError
	var networkErr *NetworkError
	var apiErr *APIError
	if errors.As(err, &timeoutErr) || errors.As(err, &networkErr) {
		return true
	}
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}
