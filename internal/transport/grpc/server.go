package grpc

import (
	"context"
	"net"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server exposes the standard gRPC health service for the delivery pipeline.
// The overall status and the per-service status move together.
type Server struct {
	grpcServer  *grpc.Server
	health      *health.Server
	serviceName string
}

func New(serviceName string) *Server {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	s := &Server{
		grpcServer:  grpcServer,
		health:      hs,
		serviceName: serviceName,
	}
	s.SetServing(true)
	return s
}

func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.serviceName, status)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	observability.GetLogger(context.Background()).Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

func (s *Server) Start(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		observability.GetLogger(context.Background()).Fatal("failed to listen for grpc", zap.String("addr", addr), zap.Error(err))
	}
	if err := s.Serve(lis); err != nil {
		observability.GetLogger(context.Background()).Error("gRPC server stopped", zap.Error(err))
	}
}

// Stop flips health to NOT_SERVING before draining so load balancers stop
// routing here first.
func (s *Server) Stop() {
	observability.GetLogger(context.Background()).Info("shutting down gRPC...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
