package middleware

import (
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/transport/response"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500. http.ErrAbortHandler is
// re-raised so net/http still aborts the response.
func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				observability.GetLogger(r.Context()).Error("handler panicked",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				response.WriteError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	response.WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
}
