package routing

import (
	"log/slog"
	"strings"

	"mercator-hq/courier/pkg/config"
)

// Role is the model tier a frontend model name is mapped to.
type Role string

// Model roles.
const (
	RoleBig         Role = "big"
	RoleMiddle      Role = "middle"
	RoleSmall       Role = "small"
	RoleVision      Role = "vision"
	RolePassthrough Role = "passthrough"
)

// passthroughPrefixes mark names that already address a backend model.
var passthroughPrefixes = []string{"gpt-", "o1-", "o3-"}

// Selection is the outcome of mapping a frontend model.
type Selection struct {
	// Model is the backend model name.
	Model string

	// Role is the tier that produced Model.
	Role Role

	// ContextLimit is the backend model's context window in tokens.
	ContextLimit int
}

// ModelSelector maps frontend (Claude) model names to backend models.
// It has no state besides the model table and is safe for concurrent use.
type ModelSelector struct {
	models config.ModelsConfig
}

// NewModelSelector creates a selector over a copy of cfg.
func NewModelSelector(cfg *config.ModelsConfig) *ModelSelector {
	return &ModelSelector{models: *cfg}
}

// Select maps model. hasImage reports whether the latest user message
// carries an image, which always selects the vision model.
//
// Mapping rules, first match wins:
//   - image in the latest user turn: vision model
//   - names starting with gpt-, o1-, o3- or containing "/": passed through
//   - names containing haiku: small model
//   - names containing sonnet: middle model
//   - names containing opus: big model
//   - anything else: big model
func (s *ModelSelector) Select(model string, hasImage bool) Selection {
	role := s.role(model, hasImage)

	var backend string
	switch role {
	case RoleVision:
		backend = s.models.Vision
	case RolePassthrough:
		backend = model
	case RoleSmall:
		backend = s.models.Small
	case RoleMiddle:
		backend = s.models.Middle
	default:
		backend = s.models.Big
	}

	slog.Debug("selected backend model",
		"requested", model,
		"role", string(role),
		"model", backend,
	)

	return Selection{
		Model:        backend,
		Role:         role,
		ContextLimit: s.models.ContextLimit(backend),
	}
}

func (s *ModelSelector) role(model string, hasImage bool) Role {
	if hasImage && s.models.Vision != "" {
		return RoleVision
	}

	lower := strings.ToLower(model)
	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return RolePassthrough
		}
	}
	if strings.Contains(model, "/") {
		return RolePassthrough
	}

	switch {
	case strings.Contains(lower, "haiku"):
		return RoleSmall
	case strings.Contains(lower, "sonnet"):
		return RoleMiddle
	case strings.Contains(lower, "opus"):
		return RoleBig
	default:
		return RoleBig
	}
}
