package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CompletionBody creates a non-streaming chat completion with text content.
func CompletionBody(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// ToolCallCompletionBody creates a non-streaming completion that calls one tool.
func ToolCallCompletionBody(id, name, arguments, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": nil,
					"tool_calls": []map[string]interface{}{
						{
							"id":   id,
							"type": "function",
							"function": map[string]interface{}{
								"name":      name,
								"arguments": arguments,
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     15,
			"completion_tokens": 5,
			"total_tokens":      20,
		},
	}
}

// TextChunk creates a streaming chunk carrying a text delta.
func TextChunk(delta string) string {
	return chunk(map[string]interface{}{"content": delta}, nil)
}

// ToolCallChunk creates a streaming chunk carrying one tool call fragment.
// Empty id and name are omitted, as backends do for continuation fragments.
func ToolCallChunk(index int, id, name, arguments string) string {
	fn := map[string]interface{}{"arguments": arguments}
	if name != "" {
		fn["name"] = name
	}
	call := map[string]interface{}{"index": index, "function": fn}
	if id != "" {
		call["id"] = id
		call["type"] = "function"
	}
	return chunk(map[string]interface{}{"tool_calls": []interface{}{call}}, nil)
}

// FinishChunk creates a streaming chunk with an empty delta and a finish reason.
func FinishChunk(reason string) string {
	return chunk(map[string]interface{}{}, &reason)
}

// UsageChunk creates the trailing usage-only chunk sent when
// stream_options.include_usage is set.
func UsageChunk(prompt, completion int) string {
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "mock-model",
		"choices": []interface{}{},
		"usage": map[string]interface{}{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
	return string(data)
}

// InBandErrorChunk creates an error object sent inside an open stream.
func InBandErrorChunk(message, code string) string {
	data, _ := json.Marshal(ErrorBody(message, code))
	return string(data)
}

func chunk(delta map[string]interface{}, finishReason *string) string {
	choice := map[string]interface{}{
		"index":         0,
		"delta":         delta,
		"finish_reason": nil,
	}
	if finishReason != nil {
		choice["finish_reason"] = *finishReason
	}
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "mock-model",
		"choices": []interface{}{choice},
	})
	return string(data)
}

// ErrorBody creates an OpenAI-style error payload.
func ErrorBody(message, code string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    code,
			"code":    code,
		},
	}
}

// ErrorResponse creates an error response with the given status.
func ErrorResponse(statusCode int, message string) Response {
	return Response{
		StatusCode: statusCode,
		Body:       ErrorBody(message, "invalid_request_error"),
	}
}

// AuthError creates a 401 response.
func AuthError() Response {
	resp := ErrorResponse(http.StatusUnauthorized, "Incorrect API key provided")
	resp.Body = ErrorBody("Incorrect API key provided", "invalid_api_key")
	return resp
}

// RateLimitError creates a 429 response with a Retry-After header.
func RateLimitError(retryAfter int) Response {
	resp := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	resp.Body = ErrorBody("Rate limit exceeded", "rate_limit_exceeded")
	resp.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfter),
	}
	return resp
}

// ServerError creates a 500 response.
func ServerError() Response {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error")
}
