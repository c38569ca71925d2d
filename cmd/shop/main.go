package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/example/storefront/docs"
	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/backup"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	shopgrpc "github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/health"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/ratelimit"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/support"
	"github.com/example/storefront/pkg/upload"
	"github.com/example/storefront/pkg/validation"
	"go.uber.org/zap"
)

const healthInterval = time.Minute

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

	logger.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.OpenDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	hs := health.NewService(db, logger.Named("health"))
	hs.SetRetention(cfg.Health.KeepLast, cfg.Health.MaxAge)
	hs.Register(health.Database(db))
	hs.Register(health.Outbox(db, 15*time.Minute, time.Now))

	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		redisRepo := repository.NewRedisRepository(&cfg.Redis)
		defer redisRepo.Close()
		limiter = ratelimit.NewRedisLimiter(redisRepo, "rl:")
		hs.Register(health.Ping("redis", redisRepo.Ping))
	} else {
		logger.Warn("Redis not configured, rate limits are per process")
		limiter = ratelimit.NewMemoryLimiter()
	}

	var auditor repository.Auditor = repository.NopAuditor{}
	if cfg.MongoDB.URI != "" {
		auditStore, err := repository.NewAuditStore(&cfg.MongoDB)
		if err != nil {
			logger.Warn("Failed to connect to MongoDB, audit trail disabled", zap.Error(err))
		} else {
			defer auditStore.Close(context.Background())
			auditor = auditStore
			hs.Register(health.Ping("mongodb", auditStore.Ping))
		}
	}

	store, err := newObjectStore(ctx, &cfg.Uploads)
	if err != nil {
		logger.Fatal("Failed to set up upload storage", zap.Error(err))
	}
	hs.Register(health.Ping("uploads", store.Check))

	sender, err := notify.NewSender(ctx, &cfg.Notify, logger.Named("sender"))
	if err != nil {
		logger.Fatal("Failed to create notification sender", zap.Error(err))
	}
	drainer := notify.NewDrainer(db, sender, &cfg.Notify, logger.Named("drainer"))

	system := actor.NewActorSystem()
	// A separate mailer process owns the ticker when one is configured.
	interval := cfg.Notify.Interval
	if cfg.Notify.MailerService != "" {
		interval = 0
	}
	dispatcher, err := notify.StartDispatcher(system, drainer, interval, logger.Named("dispatcher"))
	if err != nil {
		logger.Fatal("Failed to start notification dispatcher", zap.Error(err))
	}
	defer dispatcher.Stop()

	validate := validation.New()
	carts := cart.NewService(db, &cfg.Shop, logger.Named("cart"))
	orders := order.NewService(db, carts, auditor, &cfg.Shop, logger.Named("order"))
	methods := order.MethodsFromConfig(cfg.Shop.ShippingMethods)

	svc := gateway.Services{
		DB:        db,
		Carts:     carts,
		Checkout:  checkout.NewService(orders, methods, validate, checkout.Options{CardPaymentsEnabled: cfg.Shop.CardPaymentsEnabled}),
		Orders:    orders,
		Catalog:   catalog.NewService(db, logger.Named("catalog")),
		Support:   support.NewService(db, logger.Named("support")),
		Backups:   backup.NewService(db, cfg.Backups.Dir, auditor, logger.Named("backup")),
		Health:    hs,
		Uploads:   upload.NewProcessor(store, &cfg.Uploads, logger.Named("upload")),
		Templates: notify.NewTemplates(db),
		Drainer:   dispatcher,
		Limiter:   limiter,
		Verifier:  auth.NewVerifier(cfg.Auth.JWTSecret),
	}

	grpcServer := shopgrpc.NewHealthServer(&cfg.Server, cfg.Server.Name, logger.Named("grpc"))
	hs.OnStatus(grpcServer.SetStatus)

	// Service discovery
	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: cfg.Server.Host, Port: cfg.Server.GRPCPort}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger.Named("discovery"))
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			if err := sd.Register(ctx, instance); err != nil {
				logger.Warn("Failed to register service", zap.Error(err))
			}
			if mailer := cfg.Notify.MailerService; mailer != "" {
				peers := shopgrpc.NewPeerChecker(sd, logger.Named("peers"))
				hs.Register(health.Check{
					Name: "mailer",
					Run: func(ctx context.Context) (string, error) {
						return peers.Check(ctx, mailer)
					},
				})
			}
		}
	}

	gw := gateway.NewGateway(cfg, svc, logger.Named("gateway"))
	gw.SetupRoutes()

	errCh := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go runHealth(ctx, hs, logger)

	logger.Info("Storefront started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.Stop()
	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			logger.Warn("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}

	logger.Info("Storefront stopped")
}

func newObjectStore(ctx context.Context, cfg *config.UploadsConfig) (upload.ObjectStore, error) {
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		return upload.NewGCSStore(client, cfg.Bucket), nil
	case "local", "":
		return upload.NewLocalStore(cfg.Root, cfg.PublicPrefix), nil
	default:
		return nil, fmt.Errorf("unknown uploads backend %q", cfg.Backend)
	}
}

// runHealth refreshes the stored report so the gRPC status follows it.
func runHealth(ctx context.Context, hs *health.Service, logger *zap.Logger) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		if _, err := hs.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Health run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
