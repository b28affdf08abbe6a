package tokens

import (
	"unicode/utf8"

	"mercator-hq/courier/pkg/proxy/types"
)

// CountInputTokens estimates the input tokens of a frontend request as the
// characters of the system prompt and all text blocks divided by
// CharsPerToken, never less than 1.
func CountInputTokens(system types.Content, messages []types.Message) int {
	chars := textChars(system)
	for _, msg := range messages {
		chars += textChars(msg.Content)
	}

	n := chars / CharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

func textChars(content types.Content) int {
	chars := 0
	for _, block := range content {
		if block.Type == types.BlockText {
			chars += utf8.RuneCountInString(block.Text)
		}
	}
	return chars
}
