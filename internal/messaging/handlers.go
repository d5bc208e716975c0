package messaging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// RefundQueue records refunds waiting for a manual payout
type RefundQueue interface {
	Push(ctx context.Context, f RefundFollowUp) error
}

func handleRefundFollowUp(queue RefundQueue, logger *logrus.Logger) func(ctx context.Context, event *models.BookingCancelled) error {
	return func(ctx context.Context, event *models.BookingCancelled) error {
		if !event.Refunded {
			return nil
		}

		logger.WithFields(logrus.Fields{
			"booking_id":       event.BookingID,
			"refund_amount":    event.RefundAmount.StringFixed(2),
			"cancellation_fee": event.CancellationFee.StringFixed(2),
			"currency":         event.Currency,
			"correlation_id":   CorrelationIDFromContext(ctx),
		}).Warn("Refund recorded, manual payout required")

		return queue.Push(ctx, RefundFollowUp{
			BookingID:       event.BookingID,
			RefundAmount:    event.RefundAmount.StringFixed(2),
			CancellationFee: event.CancellationFee.StringFixed(2),
			Currency:        event.Currency,
			CustomerEmail:   event.CustomerEmail,
			RecordedAt:      event.Header.PublishedAt,
		})
	}
}

func handleLogBookingConfirmed(logger *logrus.Logger) func(ctx context.Context, event *models.BookingConfirmed) error {
	return func(ctx context.Context, event *models.BookingConfirmed) error {
		logger.WithFields(logrus.Fields{
			"booking_id":     event.BookingID,
			"package_id":     event.PackageID,
			"seats":          event.SeatCount,
			"amount":         event.Amount.StringFixed(2),
			"lag":            time.Since(event.Header.PublishedAt).String(),
			"correlation_id": CorrelationIDFromContext(ctx),
		}).Info("Booking confirmed event received")
		return nil
	}
}
