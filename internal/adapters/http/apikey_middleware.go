package http

import (
	"log/slog"
	"net/http"

	"payflow/internal/core/ports"
)

// APIKeyMiddleware authenticates merchants with HTTP Basic credentials where the username is
// the key_id and the password the raw key_secret.
func APIKeyMiddleware(merchants ports.MerchantService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, secret, ok := r.BasicAuth()
			if !ok || keyID == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="payflow"`)
				writeJSONError(w, "API key required", http.StatusUnauthorized, logger)
				return
			}

			merchant, err := merchants.Authenticate(r.Context(), keyID, secret)
			if err != nil {
				writeServiceError(w, err, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(withMerchant(r.Context(), merchant)))
		})
	}
}
