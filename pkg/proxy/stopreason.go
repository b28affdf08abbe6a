package proxy

import (
	"context"
	"log/slog"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
)

// MapStopReason maps a backend finish reason to a frontend stop reason.
// Unknown and missing reasons map to end_turn and are logged.
func MapStopReason(ctx context.Context, finishReason string) string {
	switch finishReason {
	case providers.FinishReasonStop:
		return types.StopReasonEndTurn
	case providers.FinishReasonLength:
		return types.StopReasonMaxTokens
	case providers.FinishReasonToolCalls, providers.FinishReasonFunctionCall:
		return types.StopReasonToolUse
	case providers.FinishReasonContentFilter:
		slog.WarnContext(ctx, "backend filtered content, reporting end_turn")
		return types.StopReasonEndTurn
	case "":
		slog.WarnContext(ctx, "backend sent no finish reason, reporting end_turn")
		return types.StopReasonEndTurn
	default:
		slog.WarnContext(ctx, "unknown finish reason, reporting end_turn", "finish_reason", finishReason)
		return types.StopReasonEndTurn
	}
}
