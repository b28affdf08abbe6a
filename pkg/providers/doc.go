// Package providers is the backend layer of the proxy: wire types for the
// OpenAI chat completions API, a retrying HTTP client, health tracking, and
// the error taxonomy shared by every layer above it.
//
// # Errors
//
// Every failure is an *Error tagged with a Kind:
//
//   - KindTransient: connection failures, timeouts, 408 and 5xx. Retried.
//   - KindRateLimited: 429. Retried.
//   - KindUnauthorized: 401/403. Not retried.
//   - KindBadRequest: other 4xx. Not retried.
//   - KindCancelled: the client disconnected or the request was cancelled.
//   - KindInternal: anything else.
//
// Callers branch on the kind:
//
//	resp, err := backend.Complete(ctx, req, requestID)
//	if err != nil {
//	    e := providers.AsError(err)
//	    http.Error(w, e.FriendlyMessage(), e.HTTPStatus())
//	}
//
// # Retries
//
// HTTPProvider.DoRequest makes at most MaxRetries+1 attempts. Retry n waits
// RetryBackoff * 2^n. Closing Request.Cancel abandons the in-flight attempt
// and any pending wait.
package providers
