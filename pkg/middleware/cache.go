package middleware

import (
	"net/http"
)

// NoStore marks every response as uncacheable. Mounted on routes that issue
// or inspect credentials so tokens never land in shared caches.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
