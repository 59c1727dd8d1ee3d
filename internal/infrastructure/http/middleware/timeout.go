package middleware

import (
	"context"
	"net/http"

	"3tcapital/otrs_connector/internal/infrastructure/config"
)

// RequestTimeout bounds the request context for routes that call OTRS, so a
// slow upstream releases its limiter slot before the server's WriteTimeout.
// A non-positive WriteTimeoutAPI leaves the context untouched.
func RequestTimeout(cfg config.HTTPSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.WriteTimeoutAPI <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.WriteTimeoutAPI)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
