package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/pkg/validator"
)

// BookingService owns the booking lifecycle: reservation and cancellation
type BookingService struct {
	db       *sqlx.DB
	packages *database.PackageRepository
	bookings *database.BookingRepository
	payments *database.PaymentRepository
	contacts *validator.ContactValidator
	events   EventPublisher
	audit    *AuditService
	logger   *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	db *sqlx.DB,
	packages *database.PackageRepository,
	bookings *database.BookingRepository,
	payments *database.PaymentRepository,
	events EventPublisher,
	audit *AuditService,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		db:       db,
		packages: packages,
		bookings: bookings,
		payments: payments,
		contacts: validator.NewContactValidator(),
		events:   events,
		audit:    audit,
		logger:   logger,
	}
}

// Create reserves seats on a package as a pending booking.
// Inventory is only checked here; seats are deducted when payment is confirmed.
func (s *BookingService) Create(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	if actor.UserID == uuid.Nil {
		return nil, &models.AuthorizationError{Reason: "a signed-in user is required"}
	}

	if req.Seats < models.MinSeatsPerBooking || req.Seats > models.MaxSeatsPerBooking {
		return nil, models.NewValidationError("seats",
			fmt.Sprintf("Number of seats must be between %d and %d.", models.MinSeatsPerBooking, models.MaxSeatsPerBooking))
	}

	contact, contactErrs := s.contacts.Validate(validator.Contact{
		Name:  req.CustomerName,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	})
	if len(contactErrs) > 0 {
		return nil, contactValidationError(contactErrs)
	}

	pkg, err := s.packages.GetByID(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &models.NotFoundError{Entity: "package", ID: req.PackageID.String()}
	}

	if pkg.AvailableSeats < req.Seats {
		return nil, models.NewValidationError("seats",
			fmt.Sprintf("Only %d seats available.", pkg.AvailableSeats))
	}

	booking := &models.Booking{
		ID:            uuid.New(),
		PackageID:     pkg.ID,
		OwnerUserID:   actor.UserID,
		SeatCount:     req.Seats,
		Status:        models.BookingStatusPending,
		CustomerName:  contact.Name,
		CustomerEmail: contact.Email,
		CustomerPhone: contact.Phone,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"package_id": pkg.ID,
		"seats":      booking.SeatCount,
		"user_id":    actor.UserID,
	}).Info("Booking created")

	return booking, nil
}

// Cancel cancels a booking in a single transaction. Seats deducted by a
// confirmed booking are given back, a successful payment is marked refunded
// with the refund amount and a pending payment is cancelled so its checkout
// session can no longer confirm the booking.
func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.CancelSummary, error) {
	var (
		summary *models.CancelSummary
		payment *models.Payment
		before  models.PaymentStatus
	)

	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		booking, err := s.bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return &models.NotFoundError{Entity: "booking", ID: bookingID.String()}
		}
		if !actor.CanAccessBooking(booking) {
			return &models.AuthorizationError{Reason: "booking belongs to another user"}
		}
		if booking.Status == models.BookingStatusCancelled {
			return models.NewValidationError("status", "Booking is already cancelled.")
		}

		payment, err = s.payments.GetByBookingIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		ok, err := s.bookings.TransitionStatus(ctx, tx, bookingID, booking.Status, models.BookingStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return &models.ConcurrencyConflictError{Entity: "booking", ID: bookingID.String()}
		}

		summary = &models.CancelSummary{
			BookingID:       bookingID,
			OriginalAmount:  decimal.Zero,
			RefundAmount:    decimal.Zero,
			CancellationFee: decimal.Zero,
		}

		if booking.Status == models.BookingStatusConfirmed {
			if err := s.packages.RestoreSeats(ctx, tx, booking.PackageID, booking.SeatCount); err != nil {
				return err
			}
			summary.SeatsRestored = booking.SeatCount
		}

		currency := ""
		if payment != nil {
			before = payment.Status
			currency = payment.Currency
			summary.OriginalAmount = payment.Amount

			switch payment.Status {
			case models.PaymentStatusSuccess:
				refund := CalculateRefund(payment.Amount)
				ok, err := s.payments.MarkRefunded(ctx, tx, payment.ID, refund.RefundAmount)
				if err != nil {
					return err
				}
				if !ok {
					return &models.ConcurrencyConflictError{Entity: "payment", ID: payment.ID.String()}
				}
				summary.Refunded = true
				summary.RefundAmount = refund.RefundAmount
				summary.CancellationFee = refund.CancellationFee
			case models.PaymentStatusPending:
				if _, err := s.payments.MarkCancelled(ctx, tx, payment.ID); err != nil {
					return err
				}
			}
		}

		return s.events.PublishInTx(ctx, tx.Tx, &models.BookingCancelled{
			Header:          models.NewEventHeader(),
			BookingID:       bookingID,
			PackageID:       booking.PackageID,
			SeatsRestored:   summary.SeatsRestored,
			Refunded:        summary.Refunded,
			RefundAmount:    summary.RefundAmount,
			CancellationFee: summary.CancellationFee,
			Currency:        currency,
			CustomerEmail:   booking.CustomerEmail,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":       bookingID,
		"refunded":         summary.Refunded,
		"refund_amount":    summary.RefundAmount.StringFixed(2),
		"cancellation_fee": summary.CancellationFee.StringFixed(2),
		"seats_restored":   summary.SeatsRestored,
	}).Info("Booking cancelled")

	switch {
	case summary.Refunded:
		s.audit.Record(ctx, actor, models.NewPaymentAudit(bookingID, models.PaymentEventRefundRecorded, sourceFor(actor)).
			SetPayment(payment).
			SetPaymentStatus(models.PaymentStatusRefunded).
			SetDetail("refund_amount", summary.RefundAmount.StringFixed(2)).
			SetDetail("cancellation_fee", summary.CancellationFee.StringFixed(2)))
	case payment != nil && before == models.PaymentStatusPending:
		s.audit.Record(ctx, actor, models.NewPaymentAudit(bookingID, models.PaymentEventCancelled, sourceFor(actor)).
			SetPayment(payment).
			SetPaymentStatus(models.PaymentStatusCancelled).
			SetDetail("reason", "booking cancelled"))
	}

	return summary, nil
}

// Get returns a booking the actor may see
func (s *BookingService) Get(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, &models.NotFoundError{Entity: "booking", ID: bookingID.String()}
	}
	if !actor.CanAccessBooking(booking) {
		return nil, &models.AuthorizationError{Reason: "booking belongs to another user"}
	}
	return booking, nil
}

// ListMine returns the actor's bookings with package and payment state
func (s *BookingService) ListMine(ctx context.Context, actor models.Actor) ([]models.BookingSummary, error) {
	return s.bookings.ListByOwner(ctx, actor.UserID)
}

// ListAll returns every booking for the admin view
func (s *BookingService) ListAll(ctx context.Context, limit, offset int) ([]models.BookingSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListAll(ctx, limit, offset)
}

// Confirmation returns the booking, package and payment of a paid booking
func (s *BookingService) Confirmation(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.BookingConfirmation, error) {
	booking, err := s.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.Status != models.PaymentStatusSuccess {
		return nil, models.NewValidationError("payment", "Booking has no completed payment.")
	}

	pkg, err := s.packages.GetByID(ctx, booking.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &models.NotFoundError{Entity: "package", ID: booking.PackageID.String()}
	}

	return &models.BookingConfirmation{
		Booking:    *booking,
		Package:    *pkg,
		Payment:    *payment,
		ReceiptURL: payment.ReceiptURL,
	}, nil
}

func contactValidationError(errs map[string]error) *models.ValidationError {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, fmt.Sprintf("%s: %s", field, errs[field].Error()))
	}
	return models.NewValidationError("", messages...)
}

func sourceFor(actor models.Actor) models.PaymentEventSource {
	if actor.IsAdmin() {
		return models.PaymentSourceAdmin
	}
	return models.PaymentSourceUser
}
