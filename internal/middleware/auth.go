package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/warden-proxy/warden/internal/auth"
)

// Auth returns a middleware that enforces authentication. It is meant to
// guard the admin control plane (config inspection, rule publishing,
// rollback) rather than proxied client traffic, so a rejected request is
// logged with enough detail to tell apart a misconfigured operator tool
// from someone probing the rollback/publish endpoints.
func Auth(authenticator auth.Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r)
			if err != nil {
				slog.Warn("admin API authentication rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("error", err.Error()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": err.Error(),
				})
				return
			}
			slog.Debug("admin API request authenticated",
				slog.String("path", r.URL.Path),
				slog.String("subject", identity.Subject),
			)
			ctx := auth.IdentityToContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
