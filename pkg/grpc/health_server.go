// Package grpc exposes the shop's health over the standard gRPC health
// protocol and probes peers that do the same.
package grpc

import (
	"fmt"
	"net"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/health"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type HealthServer struct {
	name   string
	addr   string
	srv    *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger
}

func NewHealthServer(cfg *config.ServerConfig, name string, logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &HealthServer{
		name:   name,
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort),
		srv:    srv,
		health: hs,
		logger: logger,
	}
	s.SetStatus(health.StatusOK)
	return s
}

// SetStatus mirrors a health report status. Degraded still serves.
func (s *HealthServer) SetStatus(status string) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == health.StatusDown {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(s.name, serving)
}

func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server started", zap.String("address", lis.Addr().String()))
	return s.srv.Serve(lis)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
