package middleware

import (
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/transport/response"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

const defaultRateWindow = time.Minute

// RateLimit allows requests per client IP within window. window is a Go
// duration string; anything unparsable means one minute. Rejections carry
// the usual JSON error body and the limiter's Retry-After header.
func RateLimit(requests int, window string) func(next http.Handler) http.Handler {
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		d = defaultRateWindow
	}

	return httprate.Limit(requests, d,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			observability.GetLogger(r.Context()).Warn("rate limited",
				zap.String("path", r.URL.Path),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
			response.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		}),
	)
}
