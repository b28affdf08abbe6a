package types

import "net/http"

// ErrorResponse is the Anthropic error body:
//
//	{"type":"error","error":{"type":"invalid_request_error","message":"..."}}
type ErrorResponse struct {
	// Type is always "error".
	Type string `json:"type"`

	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Type categorizes the error. See the ErrorType constants.
	Type string `json:"type"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error type constants. Most match the Anthropic API; request_cancelled is
// specific to this proxy.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeAuthentication indicates an authentication failure (401).
	ErrorTypeAuthentication = "authentication_error"

	// ErrorTypePermission indicates an authorization failure (403).
	ErrorTypePermission = "permission_error"

	// ErrorTypeNotFound indicates a resource was not found (404).
	ErrorTypeNotFound = "not_found_error"

	// ErrorTypeRequestTooLarge indicates the body exceeded the size limit (413).
	ErrorTypeRequestTooLarge = "request_too_large"

	// ErrorTypeRateLimit indicates too many requests (429).
	ErrorTypeRateLimit = "rate_limit_error"

	// ErrorTypeAPI indicates an internal or upstream error (500).
	ErrorTypeAPI = "api_error"

	// ErrorTypeOverloaded indicates the backend is temporarily unavailable (503).
	ErrorTypeOverloaded = "overloaded_error"

	// ErrorTypeCancelled indicates the request was cancelled (499).
	ErrorTypeCancelled = "request_cancelled"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(errorType, message string) *ErrorResponse {
	return &ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: errorType, Message: message},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeInvalidRequest, message)
}

// NewAuthenticationError creates an error response for authentication failures (401).
func NewAuthenticationError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeAuthentication, message)
}

// NewAPIError creates an error response for internal errors (500).
func NewAPIError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeAPI, message)
}

// ErrorTypeForStatus returns the error type matching an HTTP status.
func ErrorTypeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusRequestEntityTooLarge:
		return ErrorTypeRequestTooLarge
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == 499:
		return ErrorTypeCancelled
	case status == http.StatusServiceUnavailable || status == 529:
		return ErrorTypeOverloaded
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeAPI
	}
}
