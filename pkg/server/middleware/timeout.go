package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds request handling with context.WithTimeout. Handlers see
// the cancellation through the request context and map it to 504
// themselves, which keeps the response writer single-owner.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
