package proxy

import (
	"errors"
	"net/http"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
)

// RequestError represents a request parsing or validation error.
type RequestError struct {
	Message string
	Param   string

	// Status overrides the default 400.
	Status int
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Param != "" {
		return e.Param + ": " + e.Message
	}
	return e.Message
}

// HTTPStatus returns the status to answer with.
func (e *RequestError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusBadRequest
}

// HandleError converts an error into an HTTP status and an Anthropic error
// body. Backend errors keep their classified status and friendly message;
// unknown errors become a generic 500.
//
// Example usage:
//
//	if err != nil {
//	    status, errResp := HandleError(err)
//	    WriteJSONResponse(w, status, errResp)
//	    return
//	}
func HandleError(err error) (int, *types.ErrorResponse) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status := reqErr.HTTPStatus()
		return status, types.NewErrorResponse(types.ErrorTypeForStatus(status), reqErr.Error())
	}

	var valErr *types.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, types.NewInvalidRequestError(valErr.Field + ": " + valErr.Message)
	}

	var backendErr *providers.Error
	if errors.As(err, &backendErr) {
		status := backendErr.HTTPStatus()
		return status, types.NewErrorResponse(errorTypeFor(backendErr, status), backendErr.FriendlyMessage())
	}

	return http.StatusInternalServerError, types.NewAPIError("An internal error occurred. Please try again later.")
}

// errorTypeFor maps a backend error to an Anthropic error type.
func errorTypeFor(err *providers.Error, status int) string {
	switch err.Kind {
	case providers.KindUnauthorized:
		return types.ErrorTypeAuthentication
	case providers.KindBadRequest:
		return types.ErrorTypeForStatus(status)
	case providers.KindRateLimited:
		return types.ErrorTypeRateLimit
	case providers.KindCancelled:
		return types.ErrorTypeCancelled
	case providers.KindTransient:
		if status == http.StatusServiceUnavailable || status == 529 {
			return types.ErrorTypeOverloaded
		}
		return types.ErrorTypeAPI
	default:
		return types.ErrorTypeAPI
	}
}

// ErrorEvent converts a mid-stream failure into the terminal error event.
// Cancellation yields request_cancelled; every other failure is reported
// as api_error with the classified message.
func ErrorEvent(err error) types.StreamEvent {
	e := providers.AsError(err)
	if e == nil {
		return types.ErrorEvent(types.ErrorTypeAPI, "stream ended unexpectedly")
	}
	if e.Kind == providers.KindCancelled {
		return types.ErrorEvent(types.ErrorTypeCancelled, "Request was cancelled")
	}
	return types.ErrorEvent(types.ErrorTypeAPI, e.FriendlyMessage())
}
