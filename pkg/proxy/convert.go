package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/processing/tokens"
	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
	"mercator-hq/courier/pkg/routing"
)

// noToolResultContent replaces a missing tool_result content.
const noToolResultContent = "No content provided"

// RequestConverter turns a frontend request into a backend request. It is a
// pure function of its input and configuration.
type RequestConverter interface {
	Convert(ctx context.Context, req *types.MessagesRequest) (*providers.ChatRequest, error)
}

// Converter is the default RequestConverter.
type Converter struct {
	selector   *routing.ModelSelector
	limits     config.LimitsConfig
	conversion config.ConversionConfig
	estimator  tokens.Estimator
}

// NewConverter creates a converter from a configuration snapshot.
func NewConverter(cfg *config.Config) *Converter {
	return &Converter{
		selector:   routing.NewModelSelector(&cfg.Models),
		limits:     cfg.Limits,
		conversion: cfg.Conversion,
		estimator:  tokens.NewSimpleEstimator(),
	}
}

// Convert maps req to a chat completions request.
//
// When the latest user message carries an image the request is routed to
// the vision model and reduced to that single turn (plus the system prompt
// unless strip_image_context is set), and tools are disabled. Otherwise the
// whole conversation is converted, tool_result blocks following an
// assistant turn become tool messages, and the oldest messages are trimmed
// to fit the model's context window.
func (c *Converter) Convert(ctx context.Context, req *types.MessagesRequest) (*providers.ChatRequest, error) {
	allowTools := !c.conversion.DisableTools
	hasImage := latestUserHasImage(req.Messages)
	selection := c.Route(req)

	var messages []providers.Message
	if hasImage {
		if !c.conversion.StripImageContext {
			messages = appendSystem(messages, req.System)
		}
		if msg := latestImageMessage(req.Messages); msg != nil {
			messages = append(messages, c.convertUser(msg, true))
		}
	} else {
		messages = appendSystem(messages, req.System)
		messages = append(messages, c.convertConversation(req.Messages, allowTools)...)
	}

	messages, dropped := tokens.Trim(messages, selection.ContextLimit, c.estimator)
	if dropped > 0 {
		slog.WarnContext(ctx, "trimmed oldest messages to fit context window",
			"dropped", dropped,
			"model", selection.Model,
			"context_limit", selection.ContextLimit,
		)
	}

	estimate := c.estimator.EstimatePrompt(messages)
	out := &providers.ChatRequest{
		Model:       selection.Model,
		Messages:    messages,
		MaxTokens:   tokens.ClampMaxTokens(req.MaxTokens, c.limits, selection.ContextLimit, estimate),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
	}

	if allowTools && !hasImage {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		out.Tools = tools
		if len(tools) > 0 && req.ToolChoice != nil {
			out.ToolChoice = convertToolChoice(req.ToolChoice)
		}
	}
	if hasImage {
		// Vision endpoints commonly reject tool use.
		out.ToolChoice = providers.ToolChoiceNone
	}

	slog.DebugContext(ctx, "converted request",
		"requested_model", req.Model,
		"model", out.Model,
		"role", string(selection.Role),
		"messages", len(out.Messages),
		"max_tokens", out.MaxTokens,
		"prompt_estimate", estimate,
		"tools", len(out.Tools),
	)

	return out, nil
}

// Route returns the backend model req is sent to.
func (c *Converter) Route(req *types.MessagesRequest) routing.Selection {
	return c.selector.Select(req.Model, latestUserHasImage(req.Messages))
}

// convertConversation converts a text-only conversation.
func (c *Converter) convertConversation(msgs []types.Message, allowTools bool) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))

	for i := 0; i < len(msgs); i++ {
		msg := &msgs[i]
		switch msg.Role {
		case types.RoleUser:
			out = append(out, c.convertUser(msg, false))

		case types.RoleAssistant:
			out = append(out, convertAssistant(msg, allowTools))

			if !allowTools || i+1 >= len(msgs) {
				continue
			}
			next := &msgs[i+1]
			if next.Role != types.RoleUser || !next.Content.HasType(types.BlockToolResult) {
				continue
			}
			i++
			out = append(out, convertToolResults(next)...)

			// Text sent alongside tool results follows them as a user turn.
			if text := strings.TrimSpace(next.Content.Text("\n")); text != "" {
				out = append(out, providers.Message{Role: providers.RoleUser, Content: text})
			}
		}
	}

	return out
}

// convertUser converts a user message. Images are only kept when
// allowImages is set; a message with images keeps just its last meaningful
// text, capped at MaxVisionTextChars.
func (c *Converter) convertUser(msg *types.Message, allowImages bool) providers.Message {
	var texts []string
	var images []providers.ContentPart

	for i := range msg.Content {
		block := &msg.Content[i]
		switch {
		case block.Type == types.BlockText:
			texts = append(texts, block.Text)
		case allowImages && block.IsImage():
			if part, ok := imagePart(block); ok {
				images = append(images, part)
			}
		}
	}

	var parts []providers.ContentPart
	if len(images) > 0 {
		if text := visionText(texts, c.conversion.MaxVisionTextChars); text != "" {
			parts = append(parts, providers.ContentPart{Type: providers.ContentTypeText, Text: text})
		}
		parts = append(parts, images...)
	} else {
		for _, text := range texts {
			parts = append(parts, providers.ContentPart{Type: providers.ContentTypeText, Text: text})
		}
	}

	switch {
	case len(parts) == 0:
		return providers.Message{Role: providers.RoleUser, Content: ""}
	case len(parts) == 1 && parts[0].Type == providers.ContentTypeText:
		return providers.Message{Role: providers.RoleUser, Content: parts[0].Text}
	default:
		return providers.Message{Role: providers.RoleUser, Content: parts}
	}
}

// visionText returns the last text that is not blank, a system reminder or
// an image placeholder, keeping at most its last limit characters.
func visionText(texts []string, limit int) string {
	for i := len(texts) - 1; i >= 0; i-- {
		stripped := strings.TrimSpace(texts[i])
		if stripped == "" ||
			strings.HasPrefix(stripped, "<system-reminder>") ||
			strings.HasPrefix(strings.ToLower(stripped), "[image:") {
			continue
		}
		if runes := []rune(texts[i]); limit > 0 && len(runes) > limit {
			return string(runes[len(runes)-limit:])
		}
		return texts[i]
	}
	return ""
}

// imagePart converts an image or image_url block into a content part.
func imagePart(block *types.ContentBlock) (providers.ContentPart, bool) {
	if block.Type == types.BlockImage {
		return providers.ContentPart{
			Type: providers.ContentTypeImageURL,
			ImageURL: &providers.ImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", block.Source.MediaType, block.Source.Data),
			},
		}, true
	}

	var ref providers.ImageURL
	if err := json.Unmarshal(block.ImageURL, &ref); err != nil {
		var url string
		if json.Unmarshal(block.ImageURL, &url) != nil || url == "" {
			return providers.ContentPart{}, false
		}
		ref.URL = url
	}
	if ref.URL == "" {
		return providers.ContentPart{}, false
	}
	return providers.ContentPart{Type: providers.ContentTypeImageURL, ImageURL: &ref}, true
}

// convertAssistant converts an assistant message. Text blocks are
// concatenated and tool_use blocks become tool calls.
func convertAssistant(msg *types.Message, allowTools bool) providers.Message {
	out := providers.Message{Role: providers.RoleAssistant}

	var text strings.Builder
	hasText := false
	for i := range msg.Content {
		block := &msg.Content[i]
		switch {
		case block.Type == types.BlockText:
			text.WriteString(block.Text)
			hasText = true
		case allowTools && block.Type == types.BlockToolUse:
			out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
				ID:   block.ID,
				Type: providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      block.Name,
					Arguments: compactJSON(block.Input, "{}"),
				},
			})
		}
	}

	if hasText {
		out.Content = text.String()
	}
	return out
}

// convertToolResults emits one tool message per tool_result block.
func convertToolResults(msg *types.Message) []providers.Message {
	var out []providers.Message
	for i := range msg.Content {
		block := &msg.Content[i]
		if block.Type != types.BlockToolResult {
			continue
		}
		out = append(out, providers.Message{
			Role:       providers.RoleTool,
			ToolCallID: block.ToolUseID,
			Content:    toolResultText(block.Content),
		})
	}
	return out
}

// toolResultText flattens tool_result content to a string. Strings pass
// through, text items are joined by newlines, and anything else is sent as
// compact JSON.
func toolResultText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return noToolResultContent
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case string:
				parts = append(parts, it)
			case map[string]any:
				if text, ok := it["text"].(string); ok {
					parts = append(parts, text)
				} else {
					parts = append(parts, marshalCompact(it))
				}
			default:
				parts = append(parts, marshalCompact(it))
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case map[string]any:
		if v["type"] == types.BlockText {
			text, _ := v["text"].(string)
			return text
		}
		return marshalCompact(v)
	default:
		return string(raw)
	}
}

// convertTools converts tool definitions, dropping tools with blank names.
// Every input_schema must compile as a JSON Schema.
func convertTools(tools []types.Tool) ([]providers.Tool, error) {
	var out []providers.Tool
	for i, tool := range tools {
		if strings.TrimSpace(tool.Name) == "" {
			continue
		}
		if err := compileSchema(tool.InputSchema); err != nil {
			return nil, &RequestError{
				Param:   fmt.Sprintf("tools[%d].input_schema", i),
				Message: fmt.Sprintf("invalid JSON schema for tool %q: %v", tool.Name, err),
			}
		}
		out = append(out, providers.Tool{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return out, nil
}

// compileSchema checks that schema is a valid JSON Schema document.
func compileSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("input_schema.json", bytes.NewReader(data)); err != nil {
		return err
	}
	_, err = c.Compile("input_schema.json")
	return err
}

// convertToolChoice maps tool_choice. "any" has no backend equivalent and
// becomes "auto".
func convertToolChoice(choice *types.ToolChoice) any {
	switch choice.Type {
	case types.ToolChoiceNone:
		return providers.ToolChoiceNone
	case types.ToolChoiceTool:
		if choice.Name != "" {
			return map[string]any{
				"type":     providers.ToolTypeFunction,
				"function": map[string]any{"name": choice.Name},
			}
		}
	}
	return providers.ToolChoiceAuto
}

// appendSystem adds the system prompt, with text blocks joined by blank
// lines, when it is not blank.
func appendSystem(messages []providers.Message, system types.Content) []providers.Message {
	text := strings.TrimSpace(system.Text("\n\n"))
	if text == "" {
		return messages
	}
	return append(messages, providers.Message{Role: providers.RoleSystem, Content: text})
}

// latestUserHasImage reports whether the last user message carries an image.
func latestUserHasImage(msgs []types.Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return containsImage(msgs[i].Content)
		}
	}
	return false
}

// latestImageMessage returns the most recent user message with an image.
func latestImageMessage(msgs []types.Message) *types.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser && containsImage(msgs[i].Content) {
			return &msgs[i]
		}
	}
	return nil
}

func containsImage(content types.Content) bool {
	for i := range content {
		if content[i].IsImage() {
			return true
		}
	}
	return false
}

// compactJSON returns raw compacted, or fallback when raw is empty.
func compactJSON(raw json.RawMessage, fallback string) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func marshalCompact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
