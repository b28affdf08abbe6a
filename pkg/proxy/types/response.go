package types

import "encoding/json"

// Stop reasons reported to clients.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonToolUse      = "tool_use"
	StopReasonStopSequence = "stop_sequence"
)

// MessagesResponse is a complete assistant message. It is the body of a
// non-streaming response and the "message" of a message_start event, where
// Content is empty and StopReason is nil.
type MessagesResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Model        string          `json:"model"`
	Content      []ResponseBlock `json:"content"`
	StopReason   *string         `json:"stop_reason"`
	StopSequence *string         `json:"stop_sequence"`
	Usage        Usage           `json:"usage"`
}

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ResponseBlock is a text or tool_use block of an assistant message.
type ResponseBlock struct {
	Type string

	// Text is set for text blocks.
	Text string

	// ID, Name and Input are set for tool_use blocks.
	ID    string
	Name  string
	Input map[string]any
}

// TextBlock returns a text block.
func TextBlock(text string) ResponseBlock {
	return ResponseBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool_use block. A nil input is sent as {}.
func ToolUseBlock(id, name string, input map[string]any) ResponseBlock {
	return ResponseBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// MarshalJSON emits only the fields that belong to the block's type, so an
// empty text block still carries "text":"".
func (b ResponseBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ResponseBlock) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ResponseBlock{Type: raw.Type, Text: raw.Text, ID: raw.ID, Name: raw.Name, Input: raw.Input}
	return nil
}

// TokenCountResponse is the body returned by /v1/messages/count_tokens.
type TokenCountResponse struct {
	InputTokens int `json:"input_tokens"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
