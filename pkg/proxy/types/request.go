package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles accepted from clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockImageURL   = "image_url"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	// Model is the frontend model name (e.g. "claude-3-5-sonnet-20241022").
	// It is mapped to a backend model and echoed back in responses.
	Model string `json:"model"`

	// MaxTokens is the requested completion budget. Zero means unset.
	MaxTokens int `json:"max_tokens"`

	// System is the optional system prompt.
	System Content `json:"system,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	StopSequences []string       `json:"stop_sequences,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	TopK          *int           `json:"top_k,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
	ToolChoice    *ToolChoice    `json:"tool_choice,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is a list of content blocks. It decodes from either a JSON string
// (one text block) or an array of blocks; null decodes to an empty list.
type Content []ContentBlock

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = nil
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{{Type: BlockText, Text: s}}
		return nil
	case trimmed[0] == '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return err
		}
		*c = blocks
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of blocks")
	}
}

// Text joins the text of all text blocks with sep.
func (c Content) Text(sep string) string {
	parts := make([]string, 0, len(c))
	for _, b := range c {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, sep)
}

// HasType reports whether any block has the given type.
func (c Content) HasType(blockType string) bool {
	for _, b := range c {
		if b.Type == blockType {
			return true
		}
	}
	return false
}

// ContentBlock is one block of message content. Which fields are set
// depends on Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
	// image_url blocks sent by OpenAI-style clients pass through as-is
	ImageURL json.RawMessage `json:"image_url,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ImageSource is the source of an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// IsImage reports whether b carries image data the backend can use.
func (b *ContentBlock) IsImage() bool {
	switch b.Type {
	case BlockImage:
		return b.Source != nil && b.Source.Type == "base64" && b.Source.MediaType != "" && b.Source.Data != ""
	case BlockImageURL:
		return len(b.ImageURL) > 0 && !bytes.Equal(b.ImageURL, []byte("null"))
	}
	return false
}

// Tool is a tool the model may call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool choice types.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceAny  = "any"
	ToolChoiceTool = "tool"
	ToolChoiceNone = "none"
)

// ToolChoice controls how the model uses tools.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// TokenCountRequest is the body of POST /v1/messages/count_tokens.
type TokenCountRequest struct {
	Model    string    `json:"model"`
	System   Content   `json:"system,omitempty"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// Validate checks required fields and value ranges.
func (r *MessagesRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if r.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message"}
	}
	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 1.0) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0.0 and 1.0"}
	}
	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0.0 and 1.0"}
	}
	if r.TopK != nil && *r.TopK < 0 {
		return &ValidationError{Field: "top_k", Message: "top_k must not be negative"}
	}

	for i, msg := range r.Messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("message role must be %q or %q", RoleUser, RoleAssistant),
			}
		}
		for j, block := range msg.Content {
			if block.Type == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("messages[%d].content[%d].type", i, j),
					Message: "content block type is required",
				}
			}
		}
	}

	for i, tool := range r.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			continue
		}
		if tool.InputSchema == nil {
			return &ValidationError{
				Field:   fmt.Sprintf("tools[%d].input_schema", i),
				Message: "input_schema is required",
			}
		}
	}

	if r.ToolChoice != nil && r.ToolChoice.Type == ToolChoiceTool && r.ToolChoice.Name == "" {
		return &ValidationError{Field: "tool_choice.name", Message: "tool_choice of type tool requires a name"}
	}

	return nil
}

// Validate checks a token count request.
func (r *TokenCountRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	return nil
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
