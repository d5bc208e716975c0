package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/config"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	payments *PaymentService
	config   config.ReconciliationConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(payments *PaymentService, cfg config.ReconciliationConfig, logger *logrus.Logger) *CronService {
	// Seconds precision, matching the schedule format in config
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &CronService{
		cron:     c,
		payments: payments,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	_, err := s.cron.AddFunc(s.config.Schedule, s.reconcilePaymentsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule payment reconciliation job: %w", err)
	}
	s.logger.WithField("schedule", s.config.Schedule).Info("Scheduled: pending payment reconciliation")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) reconcilePaymentsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.RunReconciliationNow(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Payment reconciliation failed")
	}
}

// RunReconciliationNow runs one reconciliation sweep immediately
func (s *CronService) RunReconciliationNow(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.config.MinAge)

	report, err := s.payments.ReconcileStalePending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return report, err
	}

	s.logger.WithFields(logrus.Fields{
		"checked":       report.Checked,
		"confirmed":     report.Confirmed,
		"failed":        report.Failed,
		"still_pending": report.StillPending,
		"errors":        report.Errors,
		"duration":      time.Since(start).String(),
	}).Info("[CRON] Payment reconciliation finished")
	return report, nil
}
