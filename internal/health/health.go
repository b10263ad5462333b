// Package health exposes the standard gRPC health-checking service so
// orchestrators can probe the bot without speaking its chat protocol.
package health

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name probes may query in addition to "".
const Service = "vault.Authorizer"

type Server struct {
	hs   *grpchealth.Server
	grpc *grpc.Server
	log  *zap.Logger
}

func New(log *zap.Logger) *Server {
	hs := grpchealth.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	s := &Server{hs: hs, grpc: g, log: log}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(Service, status)
}

// Serve listens on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("health: listen: %w", err)
	}
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.hs.Shutdown()
		s.grpc.GracefulStop()
	}()
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("health: serve: %w", err)
	}
	return nil
}
