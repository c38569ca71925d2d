package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticDiscoverer struct {
	instances []*discovery.ServiceInstance
	err       error
}

func (d staticDiscoverer) Discover(context.Context, string) ([]*discovery.ServiceInstance, error) {
	return d.instances, d.err
}

func startServer(t *testing.T) (*HealthServer, *discovery.ServiceInstance) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewHealthServer(&config.ServerConfig{Host: "127.0.0.1"}, "mailer", zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	addr := lis.Addr().(*net.TCPAddr)
	return srv, &discovery.ServiceInstance{Name: "mailer", Host: "127.0.0.1", Port: addr.Port}
}

func TestPeerCheckerFollowsServingStatus(t *testing.T) {
	srv, inst := startServer(t)
	checker := NewPeerChecker(staticDiscoverer{instances: []*discovery.ServiceInstance{inst}}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := checker.Check(ctx, "mailer")
	require.NoError(t, err)
	assert.Equal(t, "1/1 serving", detail)

	srv.SetStatus(health.StatusDegraded)
	_, err = checker.Check(ctx, "mailer")
	assert.NoError(t, err)

	srv.SetStatus(health.StatusDown)
	detail, err = checker.Check(ctx, "mailer")
	assert.Error(t, err)
	assert.Equal(t, "0/1 serving", detail)
}

func TestPeerCheckerWithoutInstances(t *testing.T) {
	ctx := context.Background()

	_, err := NewPeerChecker(staticDiscoverer{}, zap.NewNop()).Check(ctx, "mailer")
	assert.Error(t, err)

	_, err = NewPeerChecker(staticDiscoverer{err: errors.New("etcd down")}, zap.NewNop()).Check(ctx, "mailer")
	assert.EqualError(t, err, "etcd down")
}
