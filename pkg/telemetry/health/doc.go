// Package health runs readiness checks for the proxy.
//
// A Checker holds named checks, each either required or optional. /ready
// runs them all concurrently with a per-check timeout:
//
//   - every check passes: "ready", 200
//   - only optional checks fail: "degraded", 200
//   - a required check fails: "unhealthy", 503
//
// The proxy registers "backend" (required; the executor's health view of
// the chat completions backend) and "event_log" (optional; the event log
// storage answers Count).
package health
