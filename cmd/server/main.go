package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/config"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/handlers"
	"github.com/tourbook/booking-backend/internal/messaging"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
	"github.com/tourbook/booking-backend/pkg/jwt"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting tour booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if err := database.EnsureSchema(ctx, db.DB); err != nil {
		logger.Fatalf("Failed to apply schema: %v", err)
	}

	watermillLogger := messaging.NewWatermillLogger(logger)
	if err := messaging.InitializeOutbox(db.DB, watermillLogger); err != nil {
		logger.Fatalf("Failed to initialise event outbox: %v", err)
	}

	// Repositories
	packageRepo := database.NewPackageRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)
	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)
	dashboardRepo := database.NewDashboardRepository(db.DB)

	// Services
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	stripeService := services.NewStripeService(&cfg.Stripe, logger)
	if !stripeService.IsConfigured() {
		logger.Warn("STRIPE_SECRET_KEY is not set, checkout requests will fail")
	}

	outbox := messaging.NewOutboxPublisher(watermillLogger)
	auditService := services.NewAuditService(auditRepo, logger)
	packageService := services.NewPackageService(packageRepo, bookingRepo, services.NewPackageValidationService(), logger)
	bookingService := services.NewBookingService(db.DB, packageRepo, bookingRepo, paymentRepo, outbox, auditService, logger)
	receiptService := services.NewReceiptService(stripeService, paymentRepo, logger)
	paymentService := services.NewPaymentService(
		db.DB, packageRepo, bookingRepo, paymentRepo,
		stripeService, receiptService, outbox, auditService,
		services.PaymentServiceConfig{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			Currency:      cfg.Stripe.Currency,
		},
		logger,
	)
	dashboardService := services.NewDashboardService(dashboardRepo)
	cronService := services.NewCronService(paymentService, cfg.Reconciliation, logger)

	g, runCtx := errgroup.WithContext(ctx)

	// Event stream
	var refundFollowUps handlers.RefundFollowUps
	if cfg.EventStreamEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		refundQueue := messaging.NewRedisRefundQueue(rdb)
		refundFollowUps = refundQueue

		fwd, err := messaging.NewForwarder(db.DB, rdb, watermillLogger)
		if err != nil {
			logger.Fatalf("Failed to create outbox forwarder: %v", err)
		}
		eventRouter, err := messaging.NewRouter(messaging.RouterDeps{
			Logger:        watermillLogger,
			Log:           logger,
			RedisClient:   rdb,
			ConsumerGroup: cfg.Events.ConsumerGroup,
			RefundQueue:   refundQueue,
		})
		if err != nil {
			logger.Fatalf("Failed to create event router: %v", err)
		}

		g.Go(func() error {
			if err := fwd.Run(runCtx); err != nil {
				return fmt.Errorf("running outbox forwarder: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := eventRouter.Run(runCtx); err != nil {
				return fmt.Errorf("running event router: %w", err)
			}
			return nil
		})
		logger.Info("Event stream enabled")
	} else {
		logger.WithFields(logrus.Fields{
			"events_enabled": cfg.Events.Enabled,
			"redis_enabled":  cfg.Redis.Enabled,
		}).Info("Event stream disabled, events stay in the outbox table")
	}

	if cfg.Reconciliation.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start reconciliation job: %v", err)
		}
		defer cronService.Stop()
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(jwtService, logger)
	packageHandler := handlers.NewPackageHandler(packageService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	adminHandler := handlers.NewAdminHandler(
		bookingService, dashboardService, auditService, paymentService,
		refundFollowUps, cronService, logger,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.CorrelationIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	authMiddleware := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/refresh", authHandler.RefreshToken)

		packages := v1.Group("/packages")
		{
			packages.GET("", packageHandler.ListPackages)
			packages.GET("/:id", packageHandler.GetPackage)
		}

		bookings := v1.Group("/bookings", authMiddleware)
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.GetMyBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.GET("/:id/confirmation", bookingHandler.GetConfirmation)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/checkout", paymentHandler.Checkout)
		}

		payments := v1.Group("/payments", authMiddleware)
		{
			payments.GET("/success", paymentHandler.CheckoutSuccess)
			payments.GET("/cancelled", paymentHandler.CheckoutCancelled)
			payments.GET("/:id/receipt", paymentHandler.GetReceipt)
		}

		admin := v1.Group("/admin", authMiddleware, middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/dashboard", adminHandler.GetDashboard)
			admin.GET("/bookings", adminHandler.ListBookings)
			admin.GET("/bookings/:id", adminHandler.GetBookingDetails)

			admin.POST("/packages", packageHandler.CreatePackage)
			admin.PUT("/packages/:id", packageHandler.UpdatePackage)
			admin.DELETE("/packages/:id", packageHandler.DeletePackage)

			admin.GET("/payments/provider-status", adminHandler.CheckProvider)
			admin.GET("/payments/provider-errors", adminHandler.GetProviderErrors)
			admin.POST("/payments/reconcile", adminHandler.RunReconciliation)
			admin.POST("/payments/:id/receipt/refresh", adminHandler.RefreshReceipt)
			admin.GET("/refunds/pending", adminHandler.ListRefundFollowUps)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("Shutting down server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}
	logger.Info("Server exited")
}

// healthCheckHandler reports database connectivity
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
