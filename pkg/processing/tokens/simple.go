package tokens

import (
	"math"
	"unicode/utf8"

	"mercator-hq/courier/pkg/providers"
)

// SimpleEstimator implements character-based estimation. It is stateless
// and safe for concurrent use.
type SimpleEstimator struct{}

// NewSimpleEstimator creates a character-based estimator.
func NewSimpleEstimator() *SimpleEstimator {
	return &SimpleEstimator{}
}

// EstimatePrompt counts the characters of every text part and tool call
// argument, charges ImageTokens per image part, and applies the bias and
// buffer.
func (e *SimpleEstimator) EstimatePrompt(messages []providers.Message) int {
	chars := 0
	images := 0

	for _, msg := range messages {
		c, i := contentSize(msg.Content)
		chars += c
		images += i

		for _, tc := range msg.ToolCalls {
			chars += utf8.RuneCountInString(tc.Function.Arguments)
		}
	}

	rough := chars/CharsPerToken + images*ImageTokens
	return int(math.Ceil(float64(rough)*EstimateBias)) + EstimateBuffer
}

// contentSize returns the character count and image count of a message
// content, which is a string or a list of parts.
func contentSize(content any) (chars, images int) {
	switch v := content.(type) {
	case nil:
		return 0, 0
	case string:
		return utf8.RuneCountInString(v), 0
	case *string:
		if v == nil {
			return 0, 0
		}
		return utf8.RuneCountInString(*v), 0
	case []providers.ContentPart:
		for _, part := range v {
			switch part.Type {
			case providers.ContentTypeText:
				chars += utf8.RuneCountInString(part.Text)
			case providers.ContentTypeImageURL:
				images++
			}
		}
		return chars, images
	case []any:
		// Content decoded from JSON rather than built by the converter.
		for _, raw := range v {
			part, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch part["type"] {
			case providers.ContentTypeText:
				if text, ok := part["text"].(string); ok {
					chars += utf8.RuneCountInString(text)
				}
			case providers.ContentTypeImageURL:
				images++
			}
		}
		return chars, images
	}
	return 0, 0
}
