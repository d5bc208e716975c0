package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, payment_id, session_id,
			event_type, event_source,
			amount, currency, payment_status,
			error_message, details,
			actor_user_id, ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14, $15,
			$16
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentID, audit.SessionID,
		audit.EventType, audit.EventSource,
		audit.Amount, audit.Currency, audit.PaymentStatus,
		audit.ErrorMessage, audit.Details,
		audit.ActorUserID, audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByBookingID retrieves all audit entries for a booking
func (r *PaymentAuditRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	query := `
		SELECT * FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits by booking ID: %w", err)
	}
	return audits, nil
}

// GetRecentByEventType retrieves recent events of a specific type
func (r *PaymentAuditRepository) GetRecentByEventType(ctx context.Context, eventType models.PaymentEventType, hours int, limit int) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	query := `
		SELECT * FROM payment_audits
		WHERE event_type = $1
		AND created_at > NOW() - INTERVAL '1 hour' * $2
		ORDER BY created_at DESC
		LIMIT $3`

	if err := r.db.SelectContext(ctx, &audits, query, eventType, hours, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	return audits, nil
}
