package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a backend failure. Callers branch on the kind instead of
// matching concrete error types.
type Kind int

const (
	// KindInternal is an unexpected failure inside the proxy.
	KindInternal Kind = iota

	// KindTransient covers connection failures, timeouts and 5xx/408
	// responses. Retried.
	KindTransient

	// KindUnauthorized is a rejected backend credential (401/403).
	KindUnauthorized

	// KindBadRequest is a request the backend refused as malformed (400,
	// and other non-retryable 4xx such as 404 or 422).
	KindBadRequest

	// KindRateLimited is a 429 from the backend. Retried.
	KindRateLimited

	// KindCancelled means the client went away or the request was
	// cancelled explicitly.
	KindCancelled
)

// StatusClientClosedRequest is the non-standard status used for requests
// cancelled by the client.
const StatusClientClosedRequest = 499

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindRateLimited:
		return "rate_limited"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is the single error type surfaced by the backend layer.
type Error struct {
	// Kind is the failure class
	Kind Kind

	// StatusCode is the backend HTTP status (0 if no response was received)
	StatusCode int

	// Code is the backend's machine-readable error code, if any
	Code string

	// Message is the backend or transport error message
	Message string

	// RetryAfter is the backend's Retry-After hint for rate limits
	RetryAfter time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// HTTPStatus returns the status to report to the client.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode
		}
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindCancelled:
		return StatusClientClosedRequest
	case KindTransient:
		if e.StatusCode > 0 {
			return e.StatusCode
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FriendlyMessage returns an actionable message for known backend failures
// and the raw message otherwise.
func (e *Error) FriendlyMessage() string {
	if msg, ok := classifyKnown(e.Code + " " + e.Message); ok {
		return msg
	}
	return e.Message
}

// KindFromStatus maps an HTTP status to a Kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == 0:
		return KindTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	case status >= 400:
		return KindBadRequest
	default:
		return KindInternal
	}
}

// NewStatusError builds an Error for a non-2xx backend response.
func NewStatusError(status int, code, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Kind:       KindFromStatus(status),
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}

// NewCancelledError reports a request cancelled by the client.
func NewCancelledError(reason string) *Error {
	return &Error{Kind: KindCancelled, StatusCode: StatusClientClosedRequest, Message: reason}
}

// ClassifyTransportError converts an error returned by http.Client.Do (or a
// body read) into an Error. parent is the caller's context; if it was
// cancelled the client is gone and the error is KindCancelled.
func ClassifyTransportError(parent context.Context, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	if parent != nil && errors.Is(parent.Err(), context.Canceled) {
		return &Error{Kind: KindCancelled, StatusCode: StatusClientClosedRequest, Message: "client disconnected", Cause: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTransient, Message: "request timed out", Cause: err}
	}

	return &Error{Kind: KindTransient, Message: "connection error: " + err.Error(), Cause: err}
}

// AsError extracts an *Error from err, wrapping unknown errors as
// KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Cause: err}
}

// IsRetryable reports whether err is a retryable backend error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCancelled
}

// ClassifyMessage maps well-known backend failure texts to actionable
// messages. Unknown messages are returned unchanged.
func ClassifyMessage(msg string) string {
	if friendly, ok := classifyKnown(msg); ok {
		return friendly
	}
	return msg
}

func classifyKnown(msg string) (string, bool) {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "unsupported_country_region_territory") ||
		strings.Contains(lower, "country, region, or territory not supported"):
		return "OpenAI API is not available in your region. Consider using a VPN or Azure OpenAI service.", true

	case strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "unauthorized"):
		return "Invalid API key. Please check your OPENAI_API_KEY configuration.", true

	case strings.Contains(lower, "rate_limit") || strings.Contains(lower, "quota"):
		return "Rate limit exceeded. Please wait and try again, or upgrade your API plan.", true

	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return "Model not found. Please check your BIG_MODEL and SMALL_MODEL configuration.", true

	case strings.Contains(lower, "billing") || strings.Contains(lower, "payment"):
		return "Billing issue. Please check your OpenAI account billing status.", true
	}

	return "", false
}
