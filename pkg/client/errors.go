package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filingsapi/go-filings-client/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting to retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind identifies the concrete failure mode of an API call. Each kind belongs
// to exactly one of two branches: transient (may be retried) or permanent
// (must not be retried).
type Kind string

const (
	// KindValidation covers malformed or unprocessable requests (400, 422).
	KindValidation Kind = "validation"

	// KindAuthentication covers credential and authorization failures (401, 403).
	KindAuthentication Kind = "authentication"

	// KindNotFound covers absent resources (404).
	KindNotFound Kind = "not_found"

	// KindRateLimit covers quota exhaustion (429).
	KindRateLimit Kind = "rate_limit"

	// KindServer covers upstream failures (500-504).
	KindServer Kind = "server"

	// KindNetwork covers transport-level failures: connect, timeout, TLS.
	KindNetwork Kind = "network"

	// KindPagination covers paging misuse, such as fetching past the last page.
	KindPagination Kind = "pagination"

	// KindConfiguration covers invalid client configuration.
	KindConfiguration Kind = "configuration"
)

// Transient reports whether errors of this kind are eligible for retry.
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}

// Error is the typed error for every failure this client surfaces. Matching
// *Error with errors.As catches everything; IsTransient and IsPermanent
// select one branch of the taxonomy. An Error is immutable once constructed.
type Error struct {
	// Kind is the concrete failure mode.
	Kind Kind

	// StatusCode is the HTTP status, 0 for transport-level failures.
	StatusCode int

	// Message describes the failure, taken from the response body when the
	// server provided one.
	Message string

	// RequestID is the per-call correlation id, matching the request_id
	// field of log events emitted during the same call.
	RequestID string

	// RetryAfter is the server-requested pause before retrying, from the
	// Retry-After header on 429 responses. Zero when not reported.
	RetryAfter time.Duration

	// ResetAt is the rate limit window reset time, from the reset header on
	// 429 responses. Zero when not reported.
	ResetAt time.Time

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "filings: %s error", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request_id=%s)", e.RequestID)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the error is eligible for retry.
func (e *Error) Transient() bool {
	return e.Kind.Transient()
}

// AsError extracts the typed error from an error chain, or nil.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsTransient reports whether err carries a transient (retry-eligible)
// classification.
func IsTransient(err error) bool {
	if apiErr := AsError(err); apiErr != nil {
		return apiErr.Transient()
	}
	return false
}

// IsPermanent reports whether err carries a permanent (fail-fast)
// classification.
func IsPermanent(err error) bool {
	if apiErr := AsError(err); apiErr != nil {
		return !apiErr.Transient()
	}
	return false
}

// errorBody is the JSON error envelope the API returns alongside non-2xx
// statuses. Both field spellings occur in the wild.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// classifyStatus maps an HTTP status to a failure kind. Statuses outside the
// documented table fall back to the nearest branch: unknown 5xx behaves like
// an upstream failure, unknown 4xx like a rejected request.
func classifyStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthentication
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimit
	}
	if status >= 500 {
		return KindServer
	}
	return KindValidation
}

// classifyResponse converts a non-2xx HTTP exchange into a typed error.
// Classification happens exactly once, here, at the boundary where the
// outcome is known; whether to retry is the retry policy's decision.
func classifyResponse(status int, body []byte, headers http.Header, requestID string) *Error {
	apiErr := &Error{
		Kind:       classifyStatus(status),
		StatusCode: status,
		Message:    http.StatusText(status),
		RequestID:  requestID,
	}

	var envelope errorBody
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Message != "" {
			apiErr.Message = envelope.Message
		} else if envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
	}

	if apiErr.Kind == KindRateLimit {
		apiErr.RetryAfter = parseRetryAfter(headers.Get("Retry-After"))
		if state, ok := ratelimit.ParseHeaders(headers); ok && state.ResetAt != nil {
			apiErr.ResetAt = *state.ResetAt
		}
	}

	return apiErr
}

// networkError wraps a transport-level failure (connect, timeout, TLS) as a
// typed transient error.
func networkError(err error, requestID string) *Error {
	return &Error{
		Kind:      KindNetwork,
		Message:   "request failed",
		RequestID: requestID,
		Err:       err,
	}
}

// parseRetryAfter parses a Retry-After header value, accepting both the
// integer-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
