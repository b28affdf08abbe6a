package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a 500 api_error response.
// The panic and stack are logged; neither reaches the client. If the
// handler had already started writing (an SSE stream, say) nothing more
// is written.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				if rw.written {
					return
				}
				_ = proxy.WriteJSONResponse(rw, http.StatusInternalServerError,
					types.NewAPIError("An internal error occurred. Please try again later."))
			}
		}()

		next.ServeHTTP(rw, r)
	})
}
