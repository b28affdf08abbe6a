package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
)

// AssembleResponse converts a complete backend response into a frontend
// message. The result depends only on its inputs: the message id is derived
// from the backend response id, and calling it twice yields equal values.
//
// Content is the assistant text (when non-empty) followed by one tool_use
// block per tool call in backend order. Arguments that are not a JSON object
// are kept as {"raw_arguments": "..."}. A response with neither text nor
// tool calls gets one empty text block.
func AssembleResponse(resp *providers.ChatResponse, req *types.MessagesRequest) *types.MessagesResponse {
	seed := resp.ID
	if seed == "" {
		data, _ := json.Marshal(resp)
		seed = string(data)
	}
	messageID := DeriveMessageID(seed)

	var message providers.ResponseMessage
	finishReason := ""
	if len(resp.Choices) > 0 {
		message = resp.Choices[0].Message
		finishReason = resp.Choices[0].FinishReason
	}

	content := make([]types.ResponseBlock, 0, 1+len(message.ToolCalls))
	if message.Content != "" {
		content = append(content, types.TextBlock(message.Content))
	}
	for i, tc := range message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = deriveToolUseID(messageID, i)
		}
		content = append(content, types.ToolUseBlock(id, tc.Function.Name, parseArguments(tc.Function.Arguments)))
	}
	if len(content) == 0 {
		content = append(content, types.TextBlock(""))
	}

	out := &types.MessagesResponse{
		ID:         messageID,
		Type:       "message",
		Role:       types.RoleAssistant,
		Model:      req.Model,
		Content:    content,
		StopReason: types.StringPtr(MapStopReason(context.Background(), finishReason)),
	}
	if resp.Usage != nil {
		out.Usage = types.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// parseArguments decodes tool call arguments into a JSON object.
func parseArguments(args string) map[string]any {
	if strings.TrimSpace(args) == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(args), &input); err != nil || input == nil {
		return map[string]any{"raw_arguments": args}
	}
	return input
}

// WriteJSONResponse writes a JSON response to the HTTP response writer.
// It sets the appropriate content-type header and handles marshaling errors.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes err as an Anthropic error body with the mapped
// status and returns that status.
func WriteErrorResponse(w http.ResponseWriter, err error) int {
	status, errResp := HandleError(err)
	_ = WriteJSONResponse(w, status, errResp)
	return status
}

// SetSSEHeaders sets the appropriate headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter writes stream events in Server-Sent Events format:
//
//	event: content_block_delta
//	data: {"type":"content_block_delta","index":0,"delta":{...}}
//
// followed by a blank line. Every event is flushed immediately.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	events  int
}

// NewSSEWriter wraps w. Headers are not written until the first event.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteEvent writes and flushes one event.
func (s *SSEWriter) WriteEvent(ev types.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE event: %w", err)
	}

	if s.events == 0 {
		SetSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	s.events++

	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Started reports whether any event has been written.
func (s *SSEWriter) Started() bool {
	return s.events > 0
}
