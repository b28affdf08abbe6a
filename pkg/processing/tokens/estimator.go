package tokens

import "mercator-hq/courier/pkg/providers"

// Estimation constants.
const (
	// CharsPerToken is the assumed average characters per token.
	CharsPerToken = 4

	// ImageTokens is charged per image part.
	ImageTokens = 400

	// EstimateBias scales the raw estimate up.
	EstimateBias = 1.35

	// EstimateBuffer is added after scaling.
	EstimateBuffer = 512

	// ContextReserve is kept free in the context window for the completion.
	ContextReserve = 2048
)

// Estimator estimates the prompt tokens of backend messages.
// Implementations may use different algorithms (character-based, BPE, etc.).
type Estimator interface {
	// EstimatePrompt returns the estimated prompt tokens of messages.
	EstimatePrompt(messages []providers.Message) int
}
