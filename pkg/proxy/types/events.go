package types

// Stream event types, in the order a well-formed stream produces them.
const (
	EventMessageStart      = "message_start"
	EventPing              = "ping"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// Delta types carried by content_block_delta events.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
)

// StreamEvent is one Server-Sent Event of a streamed response. Type is both
// the SSE event name and the "type" field of the data payload.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *MessagesResponse `json:"message,omitempty"`

	// content_block_start, content_block_delta, content_block_stop
	Index        *int           `json:"index,omitempty"`
	ContentBlock *ResponseBlock `json:"content_block,omitempty"`

	// content_block_delta carries a *BlockDelta, message_delta a *MessageDelta
	Delta any `json:"delta,omitempty"`

	// message_delta
	Usage *DeltaUsage `json:"usage,omitempty"`

	// error
	Error *ErrorDetail `json:"error,omitempty"`
}

// BlockDelta is the delta of a content_block_delta event.
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// MessageDelta is the delta of a message_delta event.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// DeltaUsage is the usage of a message_delta event.
type DeltaUsage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens"`
}

// MessageStartEvent builds a message_start event.
func MessageStartEvent(msg *MessagesResponse) StreamEvent {
	return StreamEvent{Type: EventMessageStart, Message: msg}
}

// PingEvent builds a ping event.
func PingEvent() StreamEvent {
	return StreamEvent{Type: EventPing}
}

// BlockStartEvent builds a content_block_start event.
func BlockStartEvent(index int, block ResponseBlock) StreamEvent {
	return StreamEvent{Type: EventContentBlockStart, Index: &index, ContentBlock: &block}
}

// TextDeltaEvent builds a content_block_delta event with a text_delta.
func TextDeltaEvent(index int, text string) StreamEvent {
	return StreamEvent{Type: EventContentBlockDelta, Index: &index, Delta: &BlockDelta{Type: DeltaText, Text: text}}
}

// InputJSONDeltaEvent builds a content_block_delta event with an
// input_json_delta.
func InputJSONDeltaEvent(index int, partialJSON string) StreamEvent {
	return StreamEvent{Type: EventContentBlockDelta, Index: &index, Delta: &BlockDelta{Type: DeltaInputJSON, PartialJSON: partialJSON}}
}

// BlockStopEvent builds a content_block_stop event.
func BlockStopEvent(index int) StreamEvent {
	return StreamEvent{Type: EventContentBlockStop, Index: &index}
}

// MessageDeltaEvent builds a message_delta event.
func MessageDeltaEvent(stopReason string, stopSequence *string, usage DeltaUsage) StreamEvent {
	return StreamEvent{
		Type:  EventMessageDelta,
		Delta: &MessageDelta{StopReason: stopReason, StopSequence: stopSequence},
		Usage: &usage,
	}
}

// MessageStopEvent builds a message_stop event.
func MessageStopEvent() StreamEvent {
	return StreamEvent{Type: EventMessageStop}
}

// ErrorEvent builds an error event.
func ErrorEvent(errorType, message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: &ErrorDetail{Type: errorType, Message: message}}
}

// IsTerminal reports whether no further events may follow e.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventMessageStop || e.Type == EventError
}
