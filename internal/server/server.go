package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.uber.org/zap"
)

// Server is an http.Server with the timeouts every listener of this service
// uses. Websocket connections override the deadlines after the upgrade.
type Server struct {
	name       string
	httpServer *http.Server
}

func New(name, addr string, handler http.Handler) *Server {
	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	observability.GetLogger(context.Background()).Info("starting server",
		zap.String("server", s.name), zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	observability.GetLogger(ctx).Info("shutting down server", zap.String("server", s.name))
	return s.httpServer.Shutdown(ctx)
}
