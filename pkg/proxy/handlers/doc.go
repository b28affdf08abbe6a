// Package handlers provides the HTTP handlers of the proxy.
//
// # Endpoints
//
//	POST /v1/messages                Anthropic Messages API, JSON or SSE
//	POST /v1/messages/count_tokens   character based input token estimate
//	POST /v1/requests/{id}/cancel    fire the cancellation signal of a request
//	POST /api/event_logging/batch    client telemetry, appended to the event log
//	GET  /health                     liveness plus configuration summary
//	GET  /test-connection            one small completion against the backend
//	GET  /                           service banner
//
// /ready and /metrics are served by the telemetry packages.
//
// # Request Flow
//
// MessagesHandler parses and validates the body, converts it into a chat
// completions request (model mapping, context trimming, max_tokens clamp)
// and calls the backend with the request ID as cancellation key. A
// non-streaming reply is assembled into one message; a streaming reply is
// translated fragment by fragment into SSE events.
//
// # Errors
//
// Errors before the first SSE event are answered with a JSON body in the
// Anthropic format and the mapped status:
//
//	{"type":"error","error":{"type":"rate_limit_error","message":"..."}}
//
// Once a stream has started, failures end it with a single error event.
//
// # Cancellation
//
// A stream ends early when its signal is fired through the cancel endpoint
// or when the client goes away; both are counted in the
// cancellations_total metric by source.
package handlers
