package grpc

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/discovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Discoverer finds registered instances of a service.
type Discoverer interface {
	Discover(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance, error)
}

// PeerChecker asks every registered instance of a service for its gRPC
// health status.
type PeerChecker struct {
	discovery Discoverer
	logger    *zap.Logger
}

func NewPeerChecker(d Discoverer, logger *zap.Logger) *PeerChecker {
	return &PeerChecker{discovery: d, logger: logger}
}

// Check succeeds when at least one instance of service reports SERVING.
func (p *PeerChecker) Check(ctx context.Context, service string) (string, error) {
	instances, err := p.discovery.Discover(ctx, service)
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "", fmt.Errorf("no %s instances registered", service)
	}

	serving := 0
	for _, inst := range instances {
		if err := p.probe(ctx, inst.Addr(), service); err != nil {
			p.logger.Warn("peer not serving",
				zap.String("service", service),
				zap.String("address", inst.Addr()),
				zap.Error(err))
			continue
		}
		serving++
	}
	detail := fmt.Sprintf("%d/%d serving", serving, len(instances))
	if serving == 0 {
		return detail, fmt.Errorf("no %s instance is serving", service)
	}
	return detail, nil
}

func (p *PeerChecker) probe(ctx context.Context, target, service string) error {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}
