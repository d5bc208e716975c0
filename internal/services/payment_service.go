package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
)

// PaymentServiceConfig holds the settings used to build checkout sessions
type PaymentServiceConfig struct {
	PublicBaseURL string
	Currency      string
}

// PaymentService reconciles hosted checkout payments with bookings and inventory
type PaymentService struct {
	db       *sqlx.DB
	packages *database.PackageRepository
	bookings *database.BookingRepository
	payments *database.PaymentRepository
	provider PaymentProvider
	receipts *ReceiptService
	events   EventPublisher
	audit    *AuditService
	config   PaymentServiceConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	db *sqlx.DB,
	packages *database.PackageRepository,
	bookings *database.BookingRepository,
	payments *database.PaymentRepository,
	provider PaymentProvider,
	receipts *ReceiptService,
	events EventPublisher,
	audit *AuditService,
	cfg PaymentServiceConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		db:       db,
		packages: packages,
		bookings: bookings,
		payments: payments,
		provider: provider,
		receipts: receipts,
		events:   events,
		audit:    audit,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// InitiateCheckout opens a hosted checkout session for a pending booking and
// records the booking's payment as pending. Nothing is written when the
// package no longer has enough seats or the provider call fails.
func (s *PaymentService) InitiateCheckout(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.CheckoutSession, error) {
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
	if booking.Status != models.BookingStatusPending {
		return nil, models.NewValidationError("status",
			fmt.Sprintf("Only pending bookings can be paid, booking is %s.", booking.Status))
	}

	existing, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil && (existing.Status == models.PaymentStatusSuccess || existing.Status == models.PaymentStatusRefunded) {
		return nil, models.NewValidationError("payment", "Payment has already been completed for this booking.")
	}

	pkg, err := s.packages.GetByID(ctx, booking.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &models.NotFoundError{Entity: "package", ID: booking.PackageID.String()}
	}
	if pkg.AvailableSeats < booking.SeatCount {
		return nil, &models.CapacityError{Requested: booking.SeatCount, Available: pkg.AvailableSeats}
	}

	amount := pkg.TotalPrice(booking.SeatCount).Round(2)
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"amount":     amount.StringFixed(2),
		"currency":   s.config.Currency,
	})

	customerID, err := s.provider.FindOrCreateCustomer(ctx, CustomerDetails{
		Name:        booking.CustomerName,
		Email:       booking.CustomerEmail,
		Phone:       booking.CustomerPhone,
		Description: fmt.Sprintf("Customer for booking %s", bookingID),
	})
	if err != nil {
		// The session can still be created from the email alone
		log.WithError(err).Warn("Customer lookup failed, continuing with email only")
		customerID = ""
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		BookingID:     bookingID,
		CustomerID:    customerID,
		CustomerEmail: booking.CustomerEmail,
		CustomerName:  booking.CustomerName,
		PackageName:   pkg.Name,
		Description:   fmt.Sprintf("%s, %d seat(s), %s to %s", pkg.Location, booking.SeatCount, pkg.StartDate.Format("2006-01-02"), pkg.EndDate.Format("2006-01-02")),
		Amount:        amount,
		Currency:      s.config.Currency,
		SuccessURL:    s.successURL(bookingID),
		CancelURL:     s.cancelURL(bookingID),
	})
	if err != nil {
		s.audit.Record(ctx, actor, models.NewPaymentAudit(bookingID, models.PaymentEventProviderError, sourceFor(actor)).
			SetPayment(existing).
			SetError(err).
			SetDetail("operation", "create_checkout_session"))
		return nil, &models.ProviderError{Op: "create checkout session", Err: err}
	}

	payment := &models.Payment{
		BookingID:       bookingID,
		Amount:          amount,
		Currency:        s.config.Currency,
		StripeSessionID: &session.ID,
	}
	if customerID != "" {
		payment.StripeCustomerID = &customerID
	}
	if err := s.payments.UpsertPending(ctx, payment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewValidationError("payment", "Payment has already been completed for this booking.")
		}
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"session_id": session.ID,
	}).Info("Checkout session created")

	s.audit.Record(ctx, actor, models.NewPaymentAudit(bookingID, models.PaymentEventCheckoutInitiated, sourceFor(actor)).
		SetPayment(payment))

	return &models.CheckoutSession{
		BookingID: bookingID,
		PaymentID: payment.ID,
		SessionID: session.ID,
		URL:       session.URL,
		Amount:    amount,
		Currency:  s.config.Currency,
	}, nil
}

// ConfirmSuccess handles the success redirect of a checkout session. The
// session is always looked up again with the provider; only a paid session
// confirms the booking and deducts its seats.
func (s *PaymentService) ConfirmSuccess(ctx context.Context, actor models.Actor, sessionID string, bookingID uuid.UUID) (*models.ConfirmationResult, error) {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.BookingID != bookingID {
		return nil, &models.NotFoundError{Entity: "payment", ID: sessionID}
	}

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

	return s.confirm(ctx, actor, models.PaymentSourceRedirect, booking, payment, nil)
}

// confirm verifies a session with the provider and applies the confirmation.
// A session fetched by the caller can be passed in to avoid a second lookup.
func (s *PaymentService) confirm(
	ctx context.Context,
	actor models.Actor,
	source models.PaymentEventSource,
	booking *models.Booking,
	payment *models.Payment,
	session *ProviderSession,
) (*models.ConfirmationResult, error) {
	if payment.Status == models.PaymentStatusSuccess {
		return s.alreadyConfirmed(booking, payment), nil
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, s.refuseCancelledBooking(ctx, actor, source, booking, payment, session)
	}
	if !payment.Status.CanTransitionTo(models.PaymentStatusSuccess) {
		return nil, models.NewValidationError("payment",
			fmt.Sprintf("Payment is %s and can no longer be confirmed.", payment.Status))
	}

	sessionID := ""
	if payment.StripeSessionID != nil {
		sessionID = *payment.StripeSessionID
	}
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"session_id": sessionID,
		"source":     source,
	})

	if session == nil {
		var err error
		session, err = s.provider.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventProviderError, source).
				SetPayment(payment).
				SetError(err).
				SetDetail("operation", "get_checkout_session"))
			return nil, &models.ProviderError{Op: "get checkout session", Err: err}
		}
	}

	if !session.Paid {
		log.WithField("provider_status", session.PaymentStatus).Info("Checkout session not paid yet")
		s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventStillPending, source).
			SetPayment(payment).
			SetDetail("provider_status", session.PaymentStatus))
		return nil, models.ErrPaymentPending
	}

	if !session.AmountTotal.IsZero() && !session.AmountTotal.Equal(payment.Amount) {
		log.WithField("provider_amount", session.AmountTotal.StringFixed(2)).Warn("Paid amount differs from recorded amount")
		s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventReconciliationMismatch, source).
			SetPayment(payment).
			SetDetail("provider_amount", session.AmountTotal.StringFixed(2)))
	}

	success := database.PaymentSuccess{
		PaymentIntentID: optionalString(session.PaymentIntentID),
		CustomerID:      optionalString(session.CustomerID),
		InvoiceID:       optionalString(session.InvoiceID),
		ReceiptURL:      optionalString(session.InvoiceURL),
		PaidAt:          s.now(),
	}

	already := false
	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.bookings.GetByIDForUpdate(ctx, tx, booking.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return &models.NotFoundError{Entity: "booking", ID: booking.ID.String()}
		}
		current, err := s.payments.GetByBookingIDForUpdate(ctx, tx, booking.ID)
		if err != nil {
			return err
		}
		if current == nil || current.ID != payment.ID {
			return &models.ConcurrencyConflictError{Entity: "payment", ID: payment.ID.String()}
		}
		if current.Status == models.PaymentStatusSuccess {
			already = true
			return nil
		}

		ok, err := s.payments.MarkSuccess(ctx, tx, payment.ID, success)
		if err != nil {
			return err
		}
		if !ok {
			return &models.ConcurrencyConflictError{Entity: "payment", ID: payment.ID.String()}
		}

		if locked.Status != models.BookingStatusPending {
			return &models.ConcurrencyConflictError{Entity: "booking", ID: booking.ID.String()}
		}
		ok, err = s.bookings.TransitionStatus(ctx, tx, booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return &models.ConcurrencyConflictError{Entity: "booking", ID: booking.ID.String()}
		}

		ok, err = s.packages.DecrementSeats(ctx, tx, locked.PackageID, locked.SeatCount)
		if err != nil {
			return err
		}
		if !ok {
			available := 0
			if pkg, err := s.packages.GetByIDTx(ctx, tx, locked.PackageID); err == nil && pkg != nil {
				available = pkg.AvailableSeats
			}
			return &models.CapacityError{Requested: locked.SeatCount, Available: available}
		}

		return s.events.PublishInTx(ctx, tx.Tx, &models.BookingConfirmed{
			Header:        models.NewEventHeader(),
			BookingID:     booking.ID,
			PackageID:     locked.PackageID,
			PaymentID:     payment.ID,
			SeatCount:     locked.SeatCount,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			CustomerEmail: locked.CustomerEmail,
		})
	})
	if err != nil {
		log.WithError(err).Error("Booking confirmation failed after successful payment")
		s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventBookingConfirmFailed, source).
			SetPayment(payment).
			SetError(err).
			SetDetail("provider_paid", true))
		return nil, err
	}

	if already {
		fresh, err := s.payments.GetByID(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			fresh = payment
		}
		return s.alreadyConfirmed(booking, fresh), nil
	}

	if payment.Status != models.PaymentStatusPending {
		log.WithField("previous_status", payment.Status).Warn("Payment settled after checkout was abandoned")
	}
	log.Info("Payment confirmed and booking confirmed")

	// Receipt lookups can create invoices, so they only run once the booking is committed
	if success.ReceiptURL == nil {
		success.ReceiptURL = s.storeSessionReceipt(ctx, log, payment, session)
	}

	s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventSuccess, source).
		SetPayment(payment).
		SetPaymentStatus(models.PaymentStatusSuccess).
		SetDetail("payment_intent_id", session.PaymentIntentID).
		SetDetail("previous_status", string(payment.Status)))
	s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventBookingConfirmed, source).
		SetPayment(payment).
		SetPaymentStatus(models.PaymentStatusSuccess).
		SetDetail("seats", booking.SeatCount))

	return &models.ConfirmationResult{
		BookingID:     booking.ID,
		PaymentID:     payment.ID,
		BookingStatus: models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusSuccess,
		ReceiptURL:    success.ReceiptURL,
	}, nil
}

// storeSessionReceipt resolves the receipt of a freshly confirmed session and
// stores it on the payment. Failures only leave the receipt for a later lookup.
func (s *PaymentService) storeSessionReceipt(ctx context.Context, log *logrus.Entry, payment *models.Payment, session *ProviderSession) *string {
	link := s.receipts.lookupForSession(ctx, payment, session)
	if link == nil || link.URL == "" {
		return nil
	}
	if err := s.payments.UpdateReceipt(ctx, payment.ID, optionalString(link.InvoiceID), link.URL); err != nil {
		log.WithError(err).Warn("Failed to store receipt of confirmed payment")
	}
	return &link.URL
}

// refuseCancelledBooking rejects a confirmation for a cancelled booking. When the
// provider reports the session paid anyway, the charge is audited for a manual refund.
func (s *PaymentService) refuseCancelledBooking(
	ctx context.Context,
	actor models.Actor,
	source models.PaymentEventSource,
	booking *models.Booking,
	payment *models.Payment,
	session *ProviderSession,
) error {
	refusal := models.NewValidationError("booking", "Booking is cancelled and can no longer be confirmed.")
	if payment.StripeSessionID == nil {
		return refusal
	}

	if session == nil {
		var err error
		session, err = s.provider.GetCheckoutSession(ctx, *payment.StripeSessionID)
		if err != nil {
			s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventProviderError, source).
				SetPayment(payment).
				SetError(err).
				SetDetail("operation", "get_checkout_session"))
			return refusal
		}
	}

	if session.Paid {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
			"session_id": session.ID,
		}).Error("Checkout session paid for a cancelled booking")
		s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventReconciliationMismatch, source).
			SetPayment(payment).
			SetDetail("reason", "session paid after booking was cancelled").
			SetDetail("provider_amount", session.AmountTotal.StringFixed(2)).
			SetDetail("payment_intent_id", session.PaymentIntentID))
	}
	return refusal
}

func (s *PaymentService) alreadyConfirmed(booking *models.Booking, payment *models.Payment) *models.ConfirmationResult {
	return &models.ConfirmationResult{
		BookingID:        booking.ID,
		PaymentID:        payment.ID,
		BookingStatus:    models.BookingStatusConfirmed,
		PaymentStatus:    models.PaymentStatusSuccess,
		ReceiptURL:       payment.ReceiptURL,
		AlreadyConfirmed: true,
	}
}

// CancelCallback handles the cancel redirect of a checkout session. A pending
// payment is marked cancelled; the booking stays pending and can be paid again.
func (s *PaymentService) CancelCallback(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (bool, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if booking == nil {
		return false, &models.NotFoundError{Entity: "booking", ID: bookingID.String()}
	}
	if !actor.CanAccessBooking(booking) {
		return false, &models.AuthorizationError{Reason: "booking belongs to another user"}
	}

	cancelled, err := s.payments.MarkCancelledByBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	s.logger.WithField("booking_id", bookingID).Info("Checkout cancelled by customer")
	s.audit.Record(ctx, actor, models.NewPaymentAudit(bookingID, models.PaymentEventCancelled, models.PaymentSourceRedirect).
		SetPaymentStatus(models.PaymentStatusCancelled))

	return true, nil
}

// Receipt returns the receipt link of a paid payment. A stored link is
// returned as is; otherwise the lookup chain runs and the result is stored.
func (s *PaymentService) Receipt(ctx context.Context, actor models.Actor, paymentID uuid.UUID) (*models.Receipt, error) {
	payment, err := s.accessiblePayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.ReceiptURL != nil && *payment.ReceiptURL != "" {
		return &models.Receipt{PaymentID: payment.ID, Available: true, URL: *payment.ReceiptURL, Source: ReceiptSourceStored}, nil
	}
	return s.resolveReceipt(ctx, actor, payment)
}

// RefreshReceipt ignores the stored link and runs the lookup chain again
func (s *PaymentService) RefreshReceipt(ctx context.Context, actor models.Actor, paymentID uuid.UUID) (*models.Receipt, error) {
	if !actor.IsAdmin() {
		return nil, &models.AuthorizationError{Reason: "admin role required"}
	}
	payment, err := s.accessiblePayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	return s.resolveReceipt(ctx, actor, payment)
}

func (s *PaymentService) resolveReceipt(ctx context.Context, actor models.Actor, payment *models.Payment) (*models.Receipt, error) {
	if payment.Status != models.PaymentStatusSuccess && payment.Status != models.PaymentStatusRefunded {
		return &models.Receipt{PaymentID: payment.ID, Available: false}, nil
	}

	receipt, err := s.receipts.ResolveAndStore(ctx, payment)
	if err != nil {
		return nil, err
	}
	if receipt.Available {
		s.audit.Record(ctx, actor, models.NewPaymentAudit(payment.BookingID, models.PaymentEventReceiptResolved, sourceFor(actor)).
			SetPayment(payment).
			SetDetail("source", receipt.Source))
	}
	return &receipt, nil
}

func (s *PaymentService) accessiblePayment(ctx context.Context, actor models.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, &models.NotFoundError{Entity: "payment", ID: paymentID.String()}
	}

	if !actor.IsAdmin() {
		booking, err := s.bookings.GetByID(ctx, payment.BookingID)
		if err != nil {
			return nil, err
		}
		if !actor.CanAccessBooking(booking) {
			return nil, &models.AuthorizationError{Reason: "payment belongs to another user"}
		}
	}
	return payment, nil
}

// CheckProvider verifies connectivity with the payment provider
func (s *PaymentService) CheckProvider(ctx context.Context) error {
	if err := s.provider.CheckConnection(ctx); err != nil {
		return &models.ProviderError{Op: "check connection", Err: err}
	}
	return nil
}

// ReconcileStalePending looks up pending payments that have not changed since
// before the cutoff. Paid sessions are confirmed and expired sessions marked failed.
func (s *PaymentService) ReconcileStalePending(ctx context.Context, cutoff time.Time, limit int) (ReconcileReport, error) {
	report := ReconcileReport{}

	pending, err := s.payments.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return report, err
	}

	actor := models.SystemActor
	source := models.PaymentSourceReconciliation

	for i := range pending {
		payment := &pending[i]
		report.Checked++
		log := s.logger.WithFields(logrus.Fields{
			"booking_id": payment.BookingID,
			"payment_id": payment.ID,
		})

		booking, err := s.bookings.GetByID(ctx, payment.BookingID)
		if err != nil || booking == nil {
			log.WithError(err).Warn("Skipping payment without booking")
			report.Errors++
			continue
		}

		session, err := s.provider.GetCheckoutSession(ctx, *payment.StripeSessionID)
		if err != nil {
			log.WithError(err).Warn("Provider lookup failed during reconciliation")
			report.Errors++
			continue
		}

		switch {
		case session.Paid:
			if _, err := s.confirm(ctx, actor, source, booking, payment, session); err != nil {
				log.WithError(err).Error("Reconciliation could not confirm paid session")
				report.Errors++
				continue
			}
			report.Confirmed++
		case session.Expired:
			failed, err := s.payments.MarkFailed(ctx, payment.ID)
			if err != nil {
				log.WithError(err).Error("Failed to mark expired payment")
				report.Errors++
				continue
			}
			if failed {
				report.Failed++
				s.audit.Record(ctx, actor, models.NewPaymentAudit(booking.ID, models.PaymentEventReconciliationMismatch, source).
					SetPayment(payment).
					SetPaymentStatus(models.PaymentStatusFailed).
					SetDetail("reason", "checkout session expired"))
			}
		default:
			report.StillPending++
		}
	}

	return report, nil
}

// ReconcileReport summarizes one reconciliation sweep
type ReconcileReport struct {
	Checked      int `json:"checked"`
	Confirmed    int `json:"confirmed"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

func (s *PaymentService) successURL(bookingID uuid.UUID) string {
	q := url.Values{}
	q.Set("booking_id", bookingID.String())
	// The provider substitutes the placeholder, so it must stay unescaped
	return strings.TrimRight(s.config.PublicBaseURL, "/") +
		"/api/v1/payments/success?session_id={CHECKOUT_SESSION_ID}&" + q.Encode()
}

func (s *PaymentService) cancelURL(bookingID uuid.UUID) string {
	q := url.Values{}
	q.Set("booking_id", bookingID.String())
	return strings.TrimRight(s.config.PublicBaseURL, "/") + "/api/v1/payments/cancelled?" + q.Encode()
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
