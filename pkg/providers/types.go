package providers

import "time"

// Message is one entry of a chat completions request.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is either a string or a []ContentPart for multimodal input.
	// Assistant messages that only carry tool calls leave it nil.
	Content any `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`

	// ToolCalls contains function/tool calls made by the assistant
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is used when role is "tool" to reference which tool call this responds to
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	// Type is "text" or "image_url"
	Type string `json:"type"`

	// Text is set for text parts
	Text string `json:"text,omitempty"`

	// ImageURL is set for image parts
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, usually as a data: URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ToolCall represents a function/tool call request from the model.
// In streaming deltas only Index is guaranteed; ID, Type and the function
// name arrive on the first fragment of a call and arguments are split
// across fragments.
type ToolCall struct {
	// Index identifies the call within a streamed choice
	Index *int `json:"index,omitempty"`

	// ID is a unique identifier for this tool call
	ID string `json:"id,omitempty"`

	// Type is the type of tool call (currently always "function")
	Type string `json:"type,omitempty"`

	// Function contains the function name and arguments
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a specific function invocation.
type FunctionCall struct {
	// Name is the function name to call
	Name string `json:"name,omitempty"`

	// Arguments is a JSON string (or a fragment of one when streaming)
	Arguments string `json:"arguments"`
}

// Tool represents a tool/function definition that the model can call.
type Tool struct {
	// Type is the type of tool (currently always "function")
	Type string `json:"type"`

	// Function contains the function definition
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// StreamOptions controls streaming behaviour.
type StreamOptions struct {
	// IncludeUsage asks the backend to send a final usage fragment
	IncludeUsage bool `json:"include_usage"`
}

// Usage tracks token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is a chat completions request body.
type ChatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`

	// ToolChoice is "none", "auto", or {"type": "function", "function": {"name": ...}}
	ToolChoice any `json:"tool_choice,omitempty"`

	User string `json:"user,omitempty"`
}

// ChatResponse is a non-streaming chat completions response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a Choice.
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// StreamChunk is one fragment of a streaming response.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`

	// Usage is set on the trailing fragment when include_usage is on
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice is the per-choice part of a StreamChunk.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of a StreamChoice.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// FirstChoice returns the first choice of the chunk, or nil.
func (c *StreamChunk) FirstChoice() *StreamChoice {
	if c == nil || len(c.Choices) == 0 {
		return nil
	}
	return &c.Choices[0]
}

// ProviderHealth tracks the health status of the backend.
type ProviderHealth struct {
	// IsHealthy indicates whether the backend is currently healthy
	IsHealthy bool

	// LastCheck is the timestamp of the last health update
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential failures
	ConsecutiveFailures int

	// LastSuccessfulRequest is the timestamp of the last successful request
	LastSuccessfulRequest time.Time

	// TotalRequests is the total number of attempts sent to the backend
	TotalRequests int64

	// FailedRequests is the total number of failed attempts
	FailedRequests int64
}

// ProviderConfig contains configuration for the backend connection.
type ProviderConfig struct {
	// Name labels logs and metrics (e.g., "openai")
	Name string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication key
	APIKey string

	// APIVersion enables Azure-style requests when non-empty
	APIVersion string

	// Timeout bounds each non-streaming attempt, and the wait for response
	// headers of a streaming attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// RetryBackoff is the base delay; retry n waits RetryBackoff * 2^n
	RetryBackoff time.Duration

	// HealthCheckInterval is how often to run background health checks
	HealthCheckInterval time.Duration

	// CustomHeaders are added to every request
	CustomHeaders map[string]string

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonFunctionCall  = "function_call"
	FinishReasonContentFilter = "content_filter"
)

// Content part and tool type constants
const (
	ToolTypeFunction     = "function"
	ContentTypeText      = "text"
	ContentTypeImageURL  = "image_url"
	ToolChoiceAuto       = "auto"
	ToolChoiceNone       = "none"
	DefaultProviderName  = "openai"
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultMaxIdleConns  = 100
	defaultIdleConnsHost = 10
)
