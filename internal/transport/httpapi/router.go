package httpapi

import (
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	AuthJWT    = "jwt"
	AuthHeader = "header"
)

type RouterConfig struct {
	ServiceName       string
	AuthMode          string
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	RateLimitRequests int
	RateLimitWindow   string
}

func identity(cfg RouterConfig) func(http.Handler) http.Handler {
	if cfg.AuthMode == AuthHeader {
		return middleware.HeaderIdentity
	}
	return middleware.JWT(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
}

func NewRouter(h *Handler, ws http.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware(cfg.ServiceName))
	r.Use(middleware.Recovery())
	if cfg.RateLimitRequests > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.Get("/health/live", observability.HealthLiveHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(identity(cfg))

		api.Post("/messages", h.SendMessage)
		api.Get("/messages/{id}", h.GetMessage)
		api.Post("/messages/{id}/retry", h.RetryMessage)

		api.Get("/conversations/{id}/messages", h.ListMessages)
		api.Get("/conversations/{id}/unread", h.UnreadCount)
		api.Post("/conversations/{id}/read", h.MarkRead)

		api.Post("/sync", h.Sync)
		api.Post("/admin/sweeps/{name}", h.RunSweep)

		if ws != nil {
			api.Get("/ws", ws.ServeHTTP)
		}
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
