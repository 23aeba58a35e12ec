package rpc

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// FeedService is the name the feed status is published under in the health service.
const FeedService = "bitmex.bridge.Feed"

// Server exposes the bridge liveness over the standard gRPC health protocol.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	healthy func() bool
	logger  *log.Logger
}

func NewServer(healthy func() bool, logger *log.Logger) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()

	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	s := &Server{
		grpc:    grpcServer,
		health:  healthServer,
		healthy: healthy,
		logger:  logger.WithPrefix("grpc"),
	}
	s.Refresh()
	return s
}

// Refresh publishes the current feed status.
func (s *Server) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(FeedService, status)
	s.health.SetServingStatus("", status)
}

// WatchStatus refreshes the status every interval until ctx is done.
func (s *Server) WatchStatus(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
