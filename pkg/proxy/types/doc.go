// Package types defines the Anthropic Messages wire types served by the proxy.
//
// These are the frontend data transfer objects: what clients send to
// /v1/messages and /v1/messages/count_tokens, and what they receive back,
// either as a single JSON body or as a Server-Sent Events stream.
//
// # Core Types
//
// Request types:
//   - MessagesRequest: request body for /v1/messages
//   - Message: one conversation turn (user or assistant)
//   - ContentBlock: text, image, tool_use or tool_result block
//   - Tool, ToolChoice: tool definitions and selection
//   - TokenCountRequest: request body for /v1/messages/count_tokens
//
// Response types:
//   - MessagesResponse: non-streaming response, also embedded in message_start
//   - ResponseBlock: text or tool_use block in a response
//   - StreamEvent: one SSE event of a streamed response
//   - Usage: input and output token counts
//
// Error types:
//   - ErrorResponse: {"type":"error","error":{"type":...,"message":...}}
//
// # Flexible Content
//
// Both "system" and message "content" accept either a plain string or an
// array of blocks. A string is decoded into a single text block so callers
// only ever see blocks:
//
//	{"role": "user", "content": "Hello"}
//	{"role": "user", "content": [{"type": "text", "text": "Hello"}]}
//
// decode to the same Message.
package types
