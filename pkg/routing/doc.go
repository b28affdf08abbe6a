// Package routing maps the model a Claude client asks for onto a backend
// model.
//
// Names containing "haiku", "sonnet" or "opus" select the small, middle and
// big tier. Requests whose latest user turn carries an image use the vision
// model when one is configured. Names that already address a backend model
// (gpt-*, o1-*, o3-*, or anything with a "/") pass through unchanged; all
// other names fall back to the big tier.
//
//	selector := routing.NewModelSelector(&cfg.Models)
//	sel := selector.Select("claude-3-5-haiku-20241022", false)
//	// sel.Model == cfg.Models.Small, sel.Role == routing.RoleSmall
package routing
