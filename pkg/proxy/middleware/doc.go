// Package middleware provides the HTTP middleware wrapped around the proxy
// handlers.
//
// Order, outermost first:
//
//	RecoveryMiddleware    panic -> 500 api_error
//	RequestIDMiddleware   X-Request-ID in, context, X-Request-ID out
//	LoggingMiddleware     one "request completed" line per request
//	CORSMiddleware        CORS headers and preflight
//	AuthMiddleware        client key check (API routes only)
//	BodyLimitMiddleware   413 for oversized bodies (API routes only)
//
// The request ID set here doubles as the cancellation registry key, so
// POST /v1/requests/{id}/cancel works with either a generated ID (read
// from the X-Request-ID response header) or one the client chose.
//
// The response writer wrapper used for logging forwards Flush, which SSE
// responses rely on.
package middleware
