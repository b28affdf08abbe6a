package routing

import (
	"testing"

	"mercator-hq/courier/pkg/config"
)

func testModels() *config.ModelsConfig {
	return &config.ModelsConfig{
		Big:                 "big-model",
		Middle:              "middle-model",
		Small:               "small-model",
		Vision:              "vision-model",
		SmallContextLimit:   32000,
		DefaultContextLimit: 128000,
	}
}

func TestModelSelector_Select(t *testing.T) {
	selector := NewModelSelector(testModels())

	tests := []struct {
		name      string
		model     string
		hasImage  bool
		wantModel string
		wantRole  Role
		wantLimit int
	}{
		{"haiku", "claude-3-5-haiku-20241022", false, "small-model", RoleSmall, 32000},
		{"sonnet", "claude-3-5-sonnet-20241022", false, "middle-model", RoleMiddle, 128000},
		{"opus", "claude-3-opus-20240229", false, "big-model", RoleBig, 128000},
		{"case insensitive", "Claude-Sonnet-4", false, "middle-model", RoleMiddle, 128000},
		{"unknown defaults to big", "some-model", false, "big-model", RoleBig, 128000},
		{"gpt passthrough", "gpt-4o", false, "gpt-4o", RolePassthrough, 128000},
		{"o1 passthrough", "o1-mini", false, "o1-mini", RolePassthrough, 128000},
		{"o3 passthrough", "o3-mini", false, "o3-mini", RolePassthrough, 128000},
		{"slash passthrough", "meta-llama/Llama-3.3-70B", false, "meta-llama/Llama-3.3-70B", RolePassthrough, 128000},
		{"image wins over family", "claude-3-5-haiku", true, "vision-model", RoleVision, 128000},
		{"image wins over passthrough", "gpt-4o", true, "vision-model", RoleVision, 128000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Select(tt.model, tt.hasImage)
			if got.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", got.Model, tt.wantModel)
			}
			if got.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", got.Role, tt.wantRole)
			}
			if got.ContextLimit != tt.wantLimit {
				t.Errorf("ContextLimit = %d, want %d", got.ContextLimit, tt.wantLimit)
			}
		})
	}
}

func TestModelSelector_NoVisionModel(t *testing.T) {
	models := testModels()
	models.Vision = ""
	selector := NewModelSelector(models)

	got := selector.Select("claude-3-5-sonnet", true)
	if got.Role != RoleMiddle {
		t.Errorf("Role = %q, want middle when no vision model is configured", got.Role)
	}
}

func TestModelSelector_CopiesConfig(t *testing.T) {
	models := testModels()
	selector := NewModelSelector(models)
	models.Big = "changed"

	if got := selector.Select("claude-3-opus", false).Model; got != "big-model" {
		t.Errorf("selector observed config mutation: %q", got)
	}
}
