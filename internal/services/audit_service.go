package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/utils"
)

// PaymentAuditStore persists payment audit entries
type PaymentAuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error)
	GetRecentByEventType(ctx context.Context, eventType models.PaymentEventType, hours int, limit int) ([]*models.PaymentAudit, error)
}

// AuditService records the payment audit trail
type AuditService struct {
	store  PaymentAuditStore
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store PaymentAuditStore, logger *logrus.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger,
	}
}

// Record stamps the entry with the actor and writes it.
// A failed write is logged and never fails the calling workflow.
func (s *AuditService) Record(ctx context.Context, actor models.Actor, entry *models.PaymentAudit) {
	var device map[string]interface{}
	if actor.UserAgent != "" {
		device = utils.ParseUserAgent(actor.UserAgent).ToMap()
	}
	entry.SetActor(actor, device)

	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": entry.BookingID,
			"event_type": entry.EventType,
		}).Error("Failed to write payment audit")
	}
}

// History returns the audit trail of a booking, newest first
func (s *AuditService) History(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	return s.store.GetByBookingID(ctx, bookingID)
}

// RecentProviderErrors returns provider failures of the last hours
func (s *AuditService) RecentProviderErrors(ctx context.Context, hours, limit int) ([]*models.PaymentAudit, error) {
	return s.store.GetRecentByEventType(ctx, models.PaymentEventProviderError, hours, limit)
}
