// Courier is a proxy that lets Anthropic Messages API clients talk to any
// OpenAI-compatible chat-completions backend.
//
// It accepts Claude-style requests on /v1/messages, routes the Claude model
// name to a configured backend model, translates the request and the
// response (including streamed SSE) between the two formats, and lets
// clients cancel in-flight requests by id.
//
// Usage:
//
//	# Start the proxy (reads config.yaml if present, then .env and env vars)
//	courier run
//
//	# Start with an explicit configuration file
//	courier run --config /etc/courier/config.yaml
//
//	# Verify the backend credentials and model
//	courier check
//
//	# Cancel an in-flight request
//	courier cancel req-1234 --target http://localhost:8083
//
//	# Send load through a running proxy
//	courier bench --requests 200 --concurrency 8 --stream
//
//	# Run a scripted OpenAI-compatible backend for local testing
//	courier mock-backend --listen 127.0.0.1:9090
package main

import "os"

func main() {
	os.Exit(Execute())
}
