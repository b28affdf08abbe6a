// Package proxy translates between the Anthropic Messages protocol spoken
// by clients and the OpenAI Chat Completions protocol spoken by the backend.
//
// # Architecture
//
//   - Converter: frontend request to backend request (model mapping, tool
//     and image handling, context trimming, max_tokens clamp)
//   - StreamTranslator: backend fragment stream to frontend SSE events
//   - AssembleResponse: complete backend response to frontend message
//   - HandleError: any error to an Anthropic error body and status
//   - Handlers (subpackage): HTTP endpoints
//   - Middleware (subpackage): request id, logging, CORS, auth, recovery
//   - Types (subpackage): frontend wire types
//
// # Request Flow
//
//  1. Client sends an Anthropic request to /v1/messages
//  2. Middleware chain processes the request (request id, logging, auth)
//  3. Handler parses and validates the body
//  4. Converter builds the backend request
//  5. The backend client sends it, with retries for non-streaming calls
//  6. The response is assembled, or the stream translated event by event
//
// # Streaming
//
// A streamed response always has the shape
//
//	message_start, ping,
//	(content_block_start, content_block_delta*, content_block_stop)*,
//	message_delta, message_stop
//
// or ends early with a single error event. Each event is written as
//
//	event: <type>
//	data: <json>
//
// followed by a blank line. At most one content block is open at a time,
// and the first backend finish reason ends the message; anything the
// backend sends after it is discarded.
//
// # Cancellation
//
// Every request registers a cancellation signal under its request id. The
// signal fires on client disconnect or POST /v1/requests/{id}/cancel; the
// backend call is abandoned and a streaming client receives an error event
// of type request_cancelled.
//
// # Error Handling
//
// All errors follow the Anthropic error format:
//
//	{
//	  "type": "error",
//	  "error": {
//	    "type": "invalid_request_error",
//	    "message": "messages: messages must contain at least one message"
//	  }
//	}
package proxy
