// Package gateway serves the storefront and admin JSON API.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/backup"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/health"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/ratelimit"
	"github.com/example/storefront/pkg/support"
	"github.com/example/storefront/pkg/upload"
	"github.com/example/storefront/pkg/validation"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Drainer asks the notification dispatcher for an immediate drain.
type Drainer interface {
	DrainNow(timeout time.Duration) (notify.Result, error)
}

// Services are the collaborators the handlers call into.
type Services struct {
	DB        *gorm.DB
	Carts     *cart.Service
	Checkout  *checkout.Service
	Orders    *order.Service
	Catalog   *catalog.Service
	Support   *support.Service
	Backups   *backup.Service
	Health    *health.Service
	Uploads   *upload.Processor
	Templates *notify.Templates
	Drainer   Drainer
	Limiter   ratelimit.Limiter
	Verifier  *auth.Verifier
}

type Gateway struct {
	config   *config.Config
	svc      Services
	validate *validatorv10.Validate
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(cfg *config.Config, svc Services, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))
	router.MaxMultipartMemory = cfg.Uploads.MaxBytes

	return &Gateway{
		config:   cfg,
		svc:      svc,
		validate: validation.New(),
		logger:   logger,
		router:   router,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", g.liveness)
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if local, isLocal := g.svc.Uploads.Store().(*upload.LocalStore); isLocal {
		g.router.Static(g.config.Uploads.PublicPrefix, local.Root())
	}

	api := g.router.Group("/api")
	api.Use(g.authenticate())
	{
		c := api.Group("/cart")
		{
			c.GET("", g.getCart)
			c.POST("", g.addToCart)
			c.POST("/items", g.addToCart)
			c.PATCH("/items", g.updateCartItem)
			c.DELETE("/items", g.removeCartItem)
			c.POST("/discount", g.rateLimit("discount", g.config.Shop.DiscountRateLimit, time.Minute), g.applyDiscount)
			c.DELETE("/discount", g.removeDiscount)
			c.POST("/clear", g.clearCart)
		}

		api.GET("/checkout/shipping-methods", g.shippingMethods)
		api.POST("/checkout", g.checkout)

		orders := api.Group("/orders")
		{
			orders.GET("", g.requireUser(), g.myOrders)
			orders.GET("/:id", g.lookupOrder)
			orders.GET("/:id/tracking", g.orderTracking)
		}

		api.GET("/products", g.listProducts)
		api.GET("/products/:id", g.getProduct)
		api.POST("/support/messages", g.rateLimit("support", g.config.Shop.SupportRateLimit, time.Hour), g.createSupportMessage)
		api.POST("/uploads", g.requireUser(), g.uploadImage)

		admin := api.Group("", g.requireAdmin())
		{
			admin.GET("/admin/products", g.adminListProducts)
			admin.POST("/products", g.createProduct)
			admin.PUT("/products/:id", g.updateProduct)
			admin.DELETE("/products/:id", g.deleteProduct)
			admin.POST("/products/:id/variants", g.addVariant)
			admin.PUT("/products/:id/variants/:variantId", g.updateVariant)
			admin.DELETE("/products/:id/variants/:variantId", g.deleteVariant)

			admin.GET("/admin/offers", g.listOffers)
			admin.POST("/admin/offers", g.createOffer)
			admin.GET("/admin/offers/:id", g.getOffer)
			admin.PUT("/admin/offers/:id", g.updateOffer)
			admin.DELETE("/admin/offers/:id", g.deleteOffer)

			admin.GET("/admin/orders", g.adminListOrders)
			admin.GET("/admin/orders/:id", g.adminGetOrder)
			admin.PATCH("/admin/orders/:id", g.adminUpdateOrder)
			admin.DELETE("/admin/orders/:id", g.adminRemoveOrder)
			admin.GET("/admin/orders/:id/audit", g.adminOrderAudit)
			admin.POST("/admin/orders/:id/shipments", g.addShipment)
			admin.PATCH("/admin/shipments/:id", g.updateShipment)
			admin.POST("/admin/shipments/:id/tracking", g.appendTracking)

			admin.GET("/admin/support/messages", g.listSupportMessages)
			admin.POST("/support/messages/:id/status", g.updateSupportStatus)

			admin.GET("/admin/email-templates", g.listTemplates)
			admin.GET("/admin/email-templates/:key", g.getTemplate)
			admin.PUT("/admin/email-templates/:key", g.saveTemplate)
			admin.DELETE("/admin/email-templates/:key", g.resetTemplate)
			admin.GET("/admin/emails", g.emailLog)

			admin.GET("/backups", g.listBackups)
			admin.POST("/backups", g.createBackup)
			admin.POST("/backups/retention", g.backupRetention)
			admin.POST("/backups/:id/restore", g.restoreBackup)
			admin.DELETE("/backups/:id", g.deleteBackup)

			admin.GET("/health", g.latestHealth)
			admin.POST("/health", g.runHealth)
		}

		api.POST("/worker/emails/drain", g.requireWorker(), g.drainEmails)
	}
}

func (g *Gateway) Start() error {
	g.logger.Info("HTTP server starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// liveness answers without touching dependencies.
func (g *Gateway) liveness(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
