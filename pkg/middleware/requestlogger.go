package middleware

import (
	"log/slog"
	"net/http"

	"github.com/luxuryfashion/storefront/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id, trace_id
// and span_id and stores it in context. Handlers retrieve it with
// logger.FromContext.
//
// Mount after RequestLogging and Tracing. The authenticator later re-derives
// the logger once a subject is bound.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
