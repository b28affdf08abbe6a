package tokens

import (
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/providers"
)

// Trim drops the oldest messages until the estimated prompt fits within
// contextLimit - ContextReserve. A leading system message is kept as long as
// another message can be dropped instead. It returns the kept messages and
// the number dropped; the input slice is not modified.
func Trim(messages []providers.Message, contextLimit int, estimator Estimator) ([]providers.Message, int) {
	budget := contextLimit - ContextReserve
	if budget < 1 {
		budget = 1
	}

	trimmed := append([]providers.Message(nil), messages...)
	dropped := 0

	for len(trimmed) > 0 {
		if estimator.EstimatePrompt(trimmed) <= budget {
			break
		}

		drop := 0
		if len(trimmed) > 1 && trimmed[0].Role == providers.RoleSystem {
			drop = 1
		}
		trimmed = append(trimmed[:drop], trimmed[drop+1:]...)
		dropped++
	}

	return trimmed, dropped
}

// ClampMaxTokens picks the max_tokens sent to the backend. A missing
// (non-positive) request falls back to limits.MinTokens; the result never
// exceeds limits.MaxTokens or the room left in the context window, and is
// at least 1.
func ClampMaxTokens(requested int, limits config.LimitsConfig, contextLimit, promptEstimate int) int {
	if requested < 1 {
		requested = limits.MinTokens
	}

	available := contextLimit - promptEstimate - ContextReserve
	if available < 1 {
		available = 1
	}

	result := requested
	if limits.MaxTokens > 0 && result > limits.MaxTokens {
		result = limits.MaxTokens
	}
	if result > available {
		result = available
	}
	if result < 1 {
		result = 1
	}
	return result
}
