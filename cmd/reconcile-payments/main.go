package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/config"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/messaging"
	"github.com/tourbook/booking-backend/internal/services"
)

// reconcile-payments runs the pending payment sweep once and exits
func main() {
	var (
		minAge = flag.Duration("min-age", 0, "only check payments pending for longer than this (default RECONCILIATION_MIN_AGE_MINUTES)")
		limit  = flag.Int("limit", 0, "maximum payments to check (default RECONCILIATION_BATCH_SIZE)")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if *minAge > 0 {
		cfg.Reconciliation.MinAge = *minAge
	}
	if *limit > 0 {
		cfg.Reconciliation.BatchSize = *limit
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	stripeService := services.NewStripeService(&cfg.Stripe, logger)
	if !stripeService.IsConfigured() {
		logger.Fatal("STRIPE_SECRET_KEY is required to reconcile payments")
	}

	packageRepo := database.NewPackageRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)
	auditService := services.NewAuditService(database.NewPaymentAuditRepository(db.DB, logger), logger)

	paymentService := services.NewPaymentService(
		db.DB, packageRepo, bookingRepo, paymentRepo,
		stripeService, services.NewReceiptService(stripeService, paymentRepo, logger),
		messaging.NewOutboxPublisher(messaging.NewWatermillLogger(logger)), auditService,
		services.PaymentServiceConfig{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			Currency:      cfg.Stripe.Currency,
		},
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := services.NewCronService(paymentService, cfg.Reconciliation, logger).RunReconciliationNow(ctx)
	if err != nil {
		logger.Fatalf("Reconciliation failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"checked":       report.Checked,
		"confirmed":     report.Confirmed,
		"failed":        report.Failed,
		"still_pending": report.StillPending,
		"errors":        report.Errors,
	}).Info("Reconciliation finished")
}
