package daemon

import (
	"net/http"
	"strings"
)

// bearerAuth validates "Authorization: Bearer <token>" headers. An
// empty configured token disables authentication entirely, which is the
// expected state for loopback-only binds.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":{"code":"PERMISSION","message":"unauthorized"}}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
