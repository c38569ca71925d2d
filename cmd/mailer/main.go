package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	shopgrpc "github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/health"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// mailer drains the notification outbox on its own, so the API processes
// can run with the ticker disabled.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	name := cfg.Notify.MailerService
	if name == "" {
		name = cfg.Server.Name + "-mailer"
	}
	logger.Info("Starting mailer", zap.String("name", name), zap.String("provider", cfg.Notify.Provider))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.OpenDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	sender, err := notify.NewSender(ctx, &cfg.Notify, logger.Named("sender"))
	if err != nil {
		logger.Fatal("Failed to create notification sender", zap.Error(err))
	}
	drainer := notify.NewDrainer(db, sender, &cfg.Notify, logger.Named("drainer"))

	system := actor.NewActorSystem()
	dispatcher, err := notify.StartDispatcher(system, drainer, cfg.Notify.Interval, logger.Named("dispatcher"))
	if err != nil {
		logger.Fatal("Failed to start notification dispatcher", zap.Error(err))
	}
	defer dispatcher.Stop()

	hs := health.NewService(db, logger.Named("health"))
	hs.SetRetention(cfg.Health.KeepLast, cfg.Health.MaxAge)
	hs.Register(health.Database(db))
	grpcServer := shopgrpc.NewHealthServer(&cfg.Server, name, logger.Named("grpc"))
	hs.OnStatus(grpcServer.SetStatus)
	if _, err := hs.Run(ctx); err != nil {
		logger.Warn("Initial health run failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{Name: name, Host: cfg.Server.Host, Port: cfg.Server.GRPCPort}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger.Named("discovery"))
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd", zap.String("name", name), zap.String("addr", instance.Addr()))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.Error("gRPC server error", zap.Error(err))
	}

	grpcServer.Stop()
	if sd != nil {
		if err := sd.Deregister(context.Background(), instance); err != nil {
			logger.Warn("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}
	logger.Info("Mailer stopped")
}
