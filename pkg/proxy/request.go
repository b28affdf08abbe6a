package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/courier/pkg/proxy/types"
)

const (
	// DefaultMaxRequestBodySize is used when no body limit is configured (32MB).
	// Image requests carry base64 data, so the limit is generous.
	DefaultMaxRequestBodySize = 32 * 1024 * 1024

	// AuthorizationHeader carries "Bearer <key>".
	AuthorizationHeader = "Authorization"

	// APIKeyHeader is the Anthropic client key header.
	APIKeyHeader = "X-Api-Key"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// ParseMessagesRequest parses and validates a /v1/messages body.
// The body is limited to maxBytes (DefaultMaxRequestBodySize when <= 0).
func ParseMessagesRequest(r *http.Request, maxBytes int64) (*types.MessagesRequest, error) {
	var req types.MessagesRequest
	if err := decodeBody(r, maxBytes, &req); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			return nil, &RequestError{Message: valErr.Message, Param: valErr.Field}
		}
		return nil, err
	}

	return &req, nil
}

// ParseTokenCountRequest parses and validates a /v1/messages/count_tokens body.
func ParseTokenCountRequest(r *http.Request, maxBytes int64) (*types.TokenCountRequest, error) {
	var req types.TokenCountRequest
	if err := decodeBody(r, maxBytes, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			return nil, &RequestError{Message: valErr.Message, Param: valErr.Field}
		}
		return nil, err
	}
	return &req, nil
}

// ReadBody reads at most maxBytes of the request body.
func ReadBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBodySize
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, BodyTooLarge(tooLarge.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, BodyTooLarge(maxBytes)
	}
	return body, nil
}

func decodeBody(r *http.Request, maxBytes int64, v any) error {
	body, err := ReadBody(r, maxBytes)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return &RequestError{Message: "request body is empty", Param: "body"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{Message: fmt.Sprintf("invalid JSON: %v", err), Param: "body"}
	}
	return nil
}

// BodyTooLarge returns the 413 error for a body over limit bytes.
func BodyTooLarge(limit int64) *RequestError {
	return &RequestError{
		Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", limit),
		Param:   "body",
		Status:  http.StatusRequestEntityTooLarge,
	}
}

// ExtractAPIKey returns the client key from the x-api-key header, or from
// "Authorization: Bearer <key>" when x-api-key is absent.
func ExtractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}

	authHeader := r.Header.Get(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <api-key>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// ExtractRequestID extracts the request ID from the X-Request-ID header.
// If the header is not present, it returns an empty string.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}
