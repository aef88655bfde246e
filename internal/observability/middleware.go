package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware counts every request by matched route and status.
// Websocket upgrades are counted but left out of the latency histogram and
// the in-flight gauge since they live as long as the session.
func MetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	inFlight := HttpRequestsInFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upgrade := isUpgrade(r)
			if !upgrade {
				inFlight.Inc()
				defer inFlight.Dec()
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := routePattern(r)
			status := ww.Status()
			if upgrade && status == 0 {
				status = http.StatusSwitchingProtocols
			}
			HttpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(status)).Inc()
			if !upgrade {
				HttpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(time.Since(start).Seconds())
			}
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// routePattern uses the matched chi route so ids in the path do not become
// label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
