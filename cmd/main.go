package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/clients"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/config"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/events"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/handlers"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/middleware"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/repository"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/services"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/workers"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg := config.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Initialize database
	db, err := initDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate models
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis client (optional - graceful degradation if Redis unavailable)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Failed to parse Redis URL: %v", err)
			log.Println("Continuing without Redis caching...")
		} else {
			redisClient = redis.NewClient(opt)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Printf("Warning: Failed to connect to Redis: %v", err)
				log.Println("Continuing without Redis caching...")
				redisClient = nil
			} else {
				log.Println("✓ Connected to Redis for caching")
			}
		}
	} else {
		log.Println("REDIS_URL not configured, caching disabled")
	}

	// Initialize repositories and clients
	cartRepo := repository.NewCartRepository(db, redisClient)
	productsClient := clients.NewProductsClient(cfg.ProductsServiceURL)
	log.Println("✓ Products client initialized")

	// Initialize event publisher (optional - cart works without NATS)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize event publisher: %v (cart events disabled)", err)
			publisher = nil
		} else {
			log.Println("✓ Cart event publisher initialized")
		}
	}

	// Initialize services
	priceResolver := services.NewPriceResolver()
	cartReconciler := services.NewCartReconciler(productsClient, priceResolver, logger)
	var eventSink services.CartEventPublisher
	if publisher != nil {
		eventSink = publisher
	}
	cartService := services.NewCartService(cartRepo, productsClient, priceResolver, cartReconciler, eventSink, logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	cartHandler := handlers.NewCartHandler(cartService)
	pricingHandler := handlers.NewPricingHandler(productsClient, priceResolver)

	// Initialize background workers
	cartSyncWorker := workers.NewCartSyncWorker(cartRepo, 30*time.Second, logger)

	// Initialize product event subscriber for cart consistency
	var productSubscriber *events.ProductEventSubscriber
	if cfg.NATSURL != "" {
		productSubscriber, err = events.NewProductEventSubscriber(cartRepo, productsClient, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize product event subscriber: %v (event-driven cart updates disabled)", err)
			productSubscriber = nil
		} else {
			log.Println("✓ Product event subscriber initialized")
		}
	}

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	var tracerErr error
	if cfg.Environment == "production" {
		tracerProvider, tracerErr = tracing.InitTracer(tracing.ProductionConfig("cart-service"))
	} else {
		tracerProvider, tracerErr = tracing.InitTracer(tracing.DefaultConfig("cart-service"))
	}
	if tracerErr != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", tracerErr)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("farmcy", "cart_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware for back-office routes
	rbacServiceURL := cfg.RBACServiceURL
	if rbacServiceURL == "" {
		rbacServiceURL = "http://staff-service:8080"
	}
	rbacMiddleware := rbac.NewMiddlewareWithURL(rbacServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Security headers middleware
	router.Use(gosharedmw.SecurityHeaders())

	// Rate limiting middleware (uses Redis for distributed rate limiting)
	if redisClient != nil {
		router.Use(gosharedmw.RedisRateLimitMiddlewareWithProfile(redisClient, "standard"))
		log.Println("✓ Redis-based rate limiting enabled")
	} else {
		router.Use(gosharedmw.RateLimit())
		log.Println("✓ In-memory rate limiting enabled (Redis unavailable)")
	}

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("cart-service"))

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Tenant-ID", "X-Buyer-Class"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Initialize Istio auth middleware for JWT validation in production
	istioAuth := gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: false,
		SkipPaths:          []string{"/health", "/ready", "/metrics", "/internal/"},
	})

	// Authentication middleware - environment-aware
	if cfg.Environment == "production" {
		router.Use(istioAuth)
		router.Use(middleware.TenantMiddleware())
		router.Use(gosharedmw.VendorScopeFilter())
		log.Println("✓ Using Istio auth middleware (production mode)")
	} else {
		router.Use(middleware.TenantMiddleware())
		router.Use(middleware.UserMiddleware())
		log.Println("✓ Using development auth middleware")
	}

	// Health endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)

	// Metrics endpoint
	router.GET("/metrics", gosharedmw.Handler())

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		customers := v1.Group("/customers")
		{
			// Cart (back-office access to a customer's cart)
			customers.GET("/:id/cart", rbacMiddleware.RequirePermission(rbac.PermissionCustomersRead), cartHandler.GetCart)
			customers.POST("/:id/cart/items", rbacMiddleware.RequirePermission(rbac.PermissionCustomersUpdate), cartHandler.AddToCart)
			customers.PUT("/:id/cart/items/:itemId", rbacMiddleware.RequirePermission(rbac.PermissionCustomersUpdate), cartHandler.UpdateCartItem)
			customers.DELETE("/:id/cart/items/:itemId", rbacMiddleware.RequirePermission(rbac.PermissionCustomersUpdate), cartHandler.RemoveFromCart)
			customers.DELETE("/:id/cart", rbacMiddleware.RequirePermission(rbac.PermissionCustomersUpdate), cartHandler.ClearCart)
			customers.POST("/:id/cart/merge", rbacMiddleware.RequirePermission(rbac.PermissionCustomersUpdate), cartHandler.MergeCart)
		}

		// Pricing quotes for order preview and checkout
		pricing := v1.Group("/pricing")
		{
			pricing.POST("/quote", pricingHandler.Quote)
		}

		// Public/Storefront endpoints for customer-facing operations
		// Customers manage their own cart using customer JWT authentication
		storefront := v1.Group("/storefront")
		publicCustomers := storefront.Group("/customers")
		publicCustomers.Use(middleware.CustomerAuthMiddleware())
		{
			publicCustomers.GET("/:id/cart", cartHandler.GetCart)
			publicCustomers.POST("/:id/cart/items", cartHandler.AddToCart)
			publicCustomers.PUT("/:id/cart/items/:itemId", cartHandler.UpdateCartItem)
			publicCustomers.DELETE("/:id/cart/items/:itemId", cartHandler.RemoveFromCart)
			publicCustomers.DELETE("/:id/cart", cartHandler.ClearCart)
			publicCustomers.POST("/:id/cart/merge", cartHandler.MergeCart)
			publicCustomers.POST("/pricing/quote", pricingHandler.Quote)
		}
	}

	// Internal endpoints for service-to-service calls (no RBAC)
	internal := router.Group("/internal")
	{
		internal.POST("/cart-sync/run", func(c *gin.Context) {
			if err := cartSyncWorker.ForceRun(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, cartSyncWorker.Status())
		})
		internal.GET("/cart-sync/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, cartSyncWorker.Status())
		})
	}

	// Start background workers
	cartSyncWorker.Start()
	log.Println("✓ Background workers started")

	// Start event subscriber
	if productSubscriber != nil {
		ctx := context.Background()
		if err := productSubscriber.Start(ctx); err != nil {
			log.Printf("WARNING: Failed to start product event subscriber: %v", err)
		} else {
			log.Println("✓ Product event subscriber started")
		}
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting cart-service on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart-service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop background workers
	cartSyncWorker.Stop()
	log.Println("✓ Background workers stopped")

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if publisher != nil {
		publisher.Close()
	}

	// Shutdown tracer provider
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Cart service stopped")
}

func initDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CustomerCart{},
		&models.PendingCartOperation{},
	)
}
