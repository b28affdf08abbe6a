// Package tokens provides rough prompt-size estimation for backend requests.
//
// The proxy never tokenizes. It estimates from character counts so it can
// keep prompts inside the backend model's context window and pick a safe
// max_tokens value:
//
//   - EstimatePrompt: ceil((chars/4 + 400 per image) * 1.35) + 512
//   - Trim: drops the oldest non-system messages until the estimate fits
//     within the context limit minus a 2048-token reserve
//   - ClampMaxTokens: min(requested, configured maximum, room left in the
//     context window)
//
// The estimate is deliberately conservative. Providers usually tokenize to
// more tokens than chars/4, so the bias and buffer make trimming start early.
//
// # Usage
//
//	estimator := tokens.NewSimpleEstimator()
//	msgs, dropped := tokens.Trim(msgs, limit, estimator)
//	maxTokens := tokens.ClampMaxTokens(req.MaxTokens, cfg.Limits, limit, estimator.EstimatePrompt(msgs))
//
// CountInputTokens implements the cheaper chars/4 count served by
// /v1/messages/count_tokens.
package tokens
