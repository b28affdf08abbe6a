package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/types"
)

// AuthMiddleware checks the client key (x-api-key, or Authorization:
// Bearer) against auth.client_api_key. Validation is skipped when no key
// is configured or ignore_client_api_key is set. The configuration is read
// on every request so a reload takes effect immediately.
func AuthMiddleware(getConfig func() *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := getConfig().Auth
			if !auth.ClientKeyValidationEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := proxy.ExtractAPIKey(r)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(auth.ClientAPIKey)) != 1 {
				slog.WarnContext(r.Context(), "rejected client API key",
					"path", r.URL.Path,
					"key_present", key != "",
					"api_key", proxy.RedactAPIKey(key),
				)
				_ = proxy.WriteJSONResponse(w, http.StatusUnauthorized,
					types.NewAuthenticationError("Invalid API key. Please provide a valid Anthropic API key."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
