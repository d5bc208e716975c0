package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourbook/booking-backend/internal/models"
)

func TestPaymentServiceInitiateCheckout(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("Creates Session And Pending Payment", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 5, models.BookingStatusPending)
		env.provider.customerID = "cus_123"
		env.provider.createdSession = &ProviderSession{ID: "cs_test_123", URL: "https://checkout.example.com/cs_test_123"}

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WithArgs(booking.ID).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
			WithArgs(booking.ID).
			WillReturnRows(sqlmock.NewRows(paymentCols))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WithArgs(pkg.ID).
			WillReturnRows(packageRows(pkg))
		env.mock.ExpectQuery(`INSERT INTO payments (.+) ON CONFLICT \(booking_id\)`).
			WithArgs(sqlmock.AnyArg(), booking.ID, decimal.RequireFromString("5000.00"), "inr",
				models.PaymentStatusPending, models.PaymentMethodStripe, "cs_test_123", "cus_123").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(uuid.NewString(), fixedNow, fixedNow))

		session, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		require.NoError(t, err)
		assert.Equal(t, "cs_test_123", session.SessionID)
		assert.Equal(t, "https://checkout.example.com/cs_test_123", session.URL)
		assert.Equal(t, "5000.00", session.Amount.StringFixed(2))
		assert.Equal(t, "inr", session.Currency)

		req := env.provider.lastCheckout
		assert.Equal(t, "cus_123", req.CustomerID)
		assert.Equal(t, pkg.Name, req.PackageName)
		assert.Contains(t, req.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
		assert.Contains(t, req.SuccessURL, "booking_id="+booking.ID.String())
		assert.Contains(t, req.CancelURL, "/api/v1/payments/cancelled?booking_id="+booking.ID.String())

		assert.Equal(t, []models.PaymentEventType{models.PaymentEventCheckoutInitiated}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Customer Lookup Failure Falls Back To Email", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 1, models.BookingStatusPending)
		env.provider.customerErr = errors.New("rate limited")
		env.provider.createdSession = &ProviderSession{ID: "cs_test_456", URL: "https://checkout.example.com/cs_test_456"}

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
			WillReturnRows(sqlmock.NewRows(paymentCols))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WillReturnRows(packageRows(pkg))
		env.mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(sqlmock.AnyArg(), booking.ID, sqlmock.AnyArg(), "inr",
				models.PaymentStatusPending, models.PaymentMethodStripe, "cs_test_456", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(uuid.NewString(), fixedNow, fixedNow))

		_, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		require.NoError(t, err)
		assert.Empty(t, env.provider.lastCheckout.CustomerID)
		assert.Equal(t, booking.CustomerEmail, env.provider.lastCheckout.CustomerEmail)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Not Enough Seats Writes No Payment", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(3, "1000.00")
		booking := testBooking(pkg, owner, 5, models.BookingStatusPending)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
			WillReturnRows(sqlmock.NewRows(paymentCols))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WillReturnRows(packageRows(pkg))

		session, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		assert.Nil(t, session)

		var capErr *models.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 3, capErr.Available)
		assert.Equal(t, 5, capErr.Requested)
		assert.Empty(t, env.provider.calls)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Already Paid", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusSuccess, "cs_test_done")

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
			WillReturnRows(paymentRows(payment))

		_, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Provider Failure", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		env.provider.customerID = "cus_123"
		env.provider.createErr = errors.New("stripe unavailable")

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
			WillReturnRows(sqlmock.NewRows(paymentCols))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WillReturnRows(packageRows(pkg))

		_, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		var pErr *models.ProviderError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventProviderError}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Confirmed Booking Cannot Be Paid Again", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusConfirmed)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WillReturnRows(bookingRows(booking))

		_, err := env.payments.InitiateCheckout(ctx, userActor(owner), booking.ID)
		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func expectConfirmLookups(env *testEnv, booking *models.Booking, payment *models.Payment) {
	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE stripe_session_id = \$1`).
		WithArgs(*payment.StripeSessionID).
		WillReturnRows(paymentRows(payment))
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(booking))
}

func paidSession(id string) *ProviderSession {
	return &ProviderSession{
		ID:              id,
		Paid:            true,
		PaymentStatus:   "paid",
		CustomerID:      "cus_123",
		PaymentIntentID: "pi_123",
		InvoiceID:       "in_123",
		InvoiceURL:      "https://invoice.example.com/in_123",
		AmountTotal:     decimal.RequireFromString("5000.00"),
		Currency:        "inr",
	}
}

func TestPaymentServiceConfirmSuccess(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("Paid Session Confirms Booking And Deducts Seats", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 5, models.BookingStatusPending)
		payment := testPayment(booking, "5000.00", models.PaymentStatusPending, "cs_test_123")
		env.provider.session = paidSession("cs_test_123")

		expectConfirmLookups(env, booking, payment)
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(booking.ID).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WithArgs(booking.ID).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
			WithArgs(payment.ID, sqlmock.AnyArg(), "pi_123", "cus_123", "in_123", "https://invoice.example.com/in_123").
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
			WithArgs(models.BookingStatusConfirmed, booking.ID, models.BookingStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
			WithArgs(5, pkg.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		require.NoError(t, err)
		assert.False(t, result.AlreadyConfirmed)
		assert.Equal(t, models.BookingStatusConfirmed, result.BookingStatus)
		assert.Equal(t, models.PaymentStatusSuccess, result.PaymentStatus)
		require.NotNil(t, result.ReceiptURL)
		assert.Equal(t, "https://invoice.example.com/in_123", *result.ReceiptURL)

		require.Len(t, env.publisher.events, 1)
		event, ok := env.publisher.events[0].(*models.BookingConfirmed)
		require.True(t, ok)
		assert.Equal(t, 5, event.SeatCount)

		assert.Equal(t, []models.PaymentEventType{
			models.PaymentEventSuccess,
			models.PaymentEventBookingConfirmed,
		}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Unpaid Session Writes Nothing", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_open")
		env.provider.session = &ProviderSession{ID: "cs_test_open", PaymentStatus: "unpaid"}

		expectConfirmLookups(env, booking, payment)

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_open", booking.ID)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrPaymentPending)
		assert.Empty(t, env.publisher.events)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventStillPending}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Second Confirmation Is Idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(0, "1000.00")
		booking := testBooking(pkg, owner, 5, models.BookingStatusConfirmed)
		payment := testPayment(booking, "5000.00", models.PaymentStatusSuccess, "cs_test_123")

		expectConfirmLookups(env, booking, payment)

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		require.NoError(t, err)
		assert.True(t, result.AlreadyConfirmed)
		assert.Equal(t, 0, env.provider.getCalls)
		assert.Empty(t, env.publisher.events)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Seats Gone Rolls Back", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 5, models.BookingStatusPending)
		payment := testPayment(booking, "5000.00", models.PaymentStatusPending, "cs_test_123")
		env.provider.session = paidSession("cs_test_123")
		soldOut := *pkg
		soldOut.AvailableSeats = 3

		expectConfirmLookups(env, booking, payment)
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
			WithArgs(5, pkg.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WithArgs(pkg.ID).
			WillReturnRows(packageRows(&soldOut))
		env.mock.ExpectRollback()

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		assert.Nil(t, result)

		var capErr *models.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 3, capErr.Available)
		assert.Empty(t, env.publisher.events)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventBookingConfirmFailed}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Session Of Another Booking", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_123")

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE stripe_session_id = \$1`).
			WillReturnRows(paymentRows(payment))

		_, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", uuid.New())
		var nfErr *models.NotFoundError
		assert.ErrorAs(t, err, &nfErr)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Payment Cancelled From Checkout Page Still Confirms", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusCancelled, "cs_back_button")
		session := paidSession("cs_back_button")
		session.AmountTotal = decimal.RequireFromString("2000.00")
		env.provider.session = session

		expectConfirmLookups(env, booking, payment)
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET status = 'success'(.+)status IN \('pending', 'cancelled', 'failed'\)`).
			WithArgs(payment.ID, sqlmock.AnyArg(), "pi_123", "cus_123", "in_123", "https://invoice.example.com/in_123").
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
			WithArgs(models.BookingStatusConfirmed, booking.ID, models.BookingStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
			WithArgs(2, pkg.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_back_button", booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, result.BookingStatus)
		assert.Equal(t, models.PaymentStatusSuccess, result.PaymentStatus)
		assert.Equal(t, 1, env.provider.getCalls)
		require.Len(t, env.publisher.events, 1)

		require.Equal(t, []models.PaymentEventType{
			models.PaymentEventSuccess,
			models.PaymentEventBookingConfirmed,
		}, env.audits.eventTypes())
		assert.Equal(t, "cancelled", env.audits.entries[0].Details["previous_status"])
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Cancelled Booking Refuses Paid Session", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusCancelled)
		payment := testPayment(booking, "2000.00", models.PaymentStatusCancelled, "cs_test_123")
		env.provider.session = paidSession("cs_test_123")

		expectConfirmLookups(env, booking, payment)

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		assert.Nil(t, result)
		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, 1, env.provider.getCalls)
		assert.Empty(t, env.publisher.events)

		require.Equal(t, []models.PaymentEventType{models.PaymentEventReconciliationMismatch}, env.audits.eventTypes())
		assert.Equal(t, "session paid after booking was cancelled", env.audits.entries[0].Details["reason"])
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Cancelled Booking With Unpaid Session", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusCancelled)
		payment := testPayment(booking, "2000.00", models.PaymentStatusCancelled, "cs_test_123")
		env.provider.session = &ProviderSession{ID: "cs_test_123", PaymentStatus: "unpaid"}

		expectConfirmLookups(env, booking, payment)

		_, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Empty(t, env.audits.entries)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Receipt Lookup Runs After Commit", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_123")
		env.provider.session = &ProviderSession{
			ID:            "cs_test_123",
			Paid:          true,
			PaymentStatus: "paid",
			CustomerID:    "cus_123",
			AmountTotal:   decimal.RequireFromString("2000.00"),
		}
		env.provider.generated = &ProviderInvoice{ID: "in_generated", HostedURL: "https://invoice.example.com/in_generated"}

		expectConfirmLookups(env, booking, payment)
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
			WithArgs(payment.ID, sqlmock.AnyArg(), nil, "cus_123", nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()
		env.mock.ExpectExec(`UPDATE payments SET receipt_url = \$2`).
			WithArgs(payment.ID, "https://invoice.example.com/in_generated", "in_generated").
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		require.NoError(t, err)
		require.NotNil(t, result.ReceiptURL)
		assert.Equal(t, "https://invoice.example.com/in_generated", *result.ReceiptURL)
		assert.Equal(t, []string{"get_session", "generate_invoice"}, env.provider.calls)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Rolled Back Confirmation Creates No Invoice", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(1, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_123")
		env.provider.session = &ProviderSession{
			ID:            "cs_test_123",
			Paid:          true,
			PaymentStatus: "paid",
			CustomerID:    "cus_123",
			AmountTotal:   decimal.RequireFromString("2000.00"),
		}
		env.provider.generated = &ProviderInvoice{ID: "in_generated", HostedURL: "https://invoice.example.com/in_generated"}

		expectConfirmLookups(env, booking, payment)
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRows(booking))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
			WithArgs(2, pkg.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
			WillReturnRows(packageRows(pkg))
		env.mock.ExpectRollback()

		_, err := env.payments.ConfirmSuccess(ctx, userActor(owner), "cs_test_123", booking.ID)
		var capErr *models.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.NotContains(t, env.provider.calls, "generate_invoice")
		assert.Equal(t, []string{"get_session"}, env.provider.calls)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestPaymentServiceCancelCallback(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	env := newTestEnv(t)
	pkg := testPackage(5, "1000.00")
	booking := testBooking(pkg, owner, 2, models.BookingStatusPending)

	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectExec(`UPDATE payments SET status = 'cancelled', updated_at = NOW\(\) WHERE booking_id = \$1`).
		WithArgs(booking.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cancelled, err := env.payments.CancelCallback(ctx, userActor(owner), booking.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, []models.PaymentEventType{models.PaymentEventCancelled}, env.audits.eventTypes())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPaymentServiceReceipt(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("Stored Receipt", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusConfirmed)
		payment := testPayment(booking, "2000.00", models.PaymentStatusSuccess, "cs_test_123")
		url := "https://pay.example.com/receipts/1"
		payment.ReceiptURL = &url

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE id = \$1`).
			WithArgs(payment.ID).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
			WithArgs(booking.ID).
			WillReturnRows(bookingRows(booking))

		receipt, err := env.payments.Receipt(ctx, userActor(owner), payment.ID)
		require.NoError(t, err)
		assert.True(t, receipt.Available)
		assert.Equal(t, url, receipt.URL)
		assert.Equal(t, ReceiptSourceStored, receipt.Source)
		assert.Empty(t, env.provider.calls)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Resolved And Stored", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusConfirmed)
		payment := testPayment(booking, "2000.00", models.PaymentStatusSuccess, "")
		intent := "pi_123"
		payment.StripePaymentIntentID = &intent
		env.provider.chargeURL = "https://pay.example.com/charges/ch_1"

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE id = \$1`).
			WillReturnRows(paymentRows(payment))
		env.mock.ExpectExec(`UPDATE payments SET receipt_url = \$2`).
			WithArgs(payment.ID, "https://pay.example.com/charges/ch_1", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		receipt, err := env.payments.Receipt(ctx, adminActor(), payment.ID)
		require.NoError(t, err)
		assert.True(t, receipt.Available)
		assert.Equal(t, ReceiptSourceCharge, receipt.Source)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventReceiptResolved}, env.audits.eventTypes())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Unpaid Payment Has No Receipt", func(t *testing.T) {
		env := newTestEnv(t)
		pkg := testPackage(5, "1000.00")
		booking := testBooking(pkg, owner, 2, models.BookingStatusPending)
		payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_123")

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE id = \$1`).
			WillReturnRows(paymentRows(payment))

		receipt, err := env.payments.Receipt(ctx, adminActor(), payment.ID)
		require.NoError(t, err)
		assert.False(t, receipt.Available)
		assert.Empty(t, env.provider.calls)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Refresh Requires Admin", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.payments.RefreshReceipt(ctx, userActor(owner), uuid.New())
		var aErr *models.AuthorizationError
		assert.ErrorAs(t, err, &aErr)
	})
}

func TestPaymentServiceReconcileStalePending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pkg := testPackage(5, "1000.00")
	booking := testBooking(pkg, uuid.New(), 2, models.BookingStatusPending)
	payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_test_expired")
	env.provider.session = &ProviderSession{ID: "cs_test_expired", Expired: true, PaymentStatus: "unpaid"}
	cutoff := fixedNow.Add(-15 * time.Minute)

	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE status IN \('pending', 'cancelled'\)`).
		WithArgs(cutoff, 50).
		WillReturnRows(paymentRows(payment))
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectExec(`UPDATE payments SET status = 'failed'`).
		WithArgs(payment.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	report, err := env.payments.ReconcileStalePending(ctx, cutoff, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Failed: 1}, report)
	assert.Equal(t, []models.PaymentEventType{models.PaymentEventReconciliationMismatch}, env.audits.eventTypes())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPaymentServiceReconcileCancelledButPaid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pkg := testPackage(5, "1000.00")
	booking := testBooking(pkg, uuid.New(), 2, models.BookingStatusPending)
	payment := testPayment(booking, "2000.00", models.PaymentStatusCancelled, "cs_back_button")
	session := paidSession("cs_back_button")
	session.AmountTotal = decimal.RequireFromString("2000.00")
	env.provider.session = session
	cutoff := fixedNow.Add(-15 * time.Minute)

	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE status IN \('pending', 'cancelled'\)`).
		WithArgs(cutoff, 50).
		WillReturnRows(paymentRows(payment))
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(paymentRows(payment))
	env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
		WithArgs(2, pkg.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	report, err := env.payments.ReconcileStalePending(ctx, cutoff, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Confirmed: 1}, report)
	assert.Equal(t, 1, env.provider.getCalls)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestBookingLifecycleKeepsSeatsAndAmountsConsistent(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	actor := userActor(owner)
	env := newTestEnv(t)
	pkg := testPackage(5, "1000.00")
	paymentID := uuid.New()

	// Booking leaves inventory alone
	env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
		WithArgs(pkg.ID).
		WillReturnRows(packageRows(pkg))
	env.mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking, err := env.bookings.Create(ctx, actor, validBookingRequest(pkg.ID, 2))
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusPending, booking.Status)

	// Checkout records 2 x 1000.00
	env.provider.customerID = "cus_123"
	env.provider.createdSession = &ProviderSession{ID: "cs_lifecycle", URL: "https://checkout.example.com/cs_lifecycle"}
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1`).
		WithArgs(booking.ID).
		WillReturnRows(sqlmock.NewRows(paymentCols))
	env.mock.ExpectQuery(`SELECT (.+) FROM packages WHERE id = \$1`).
		WithArgs(pkg.ID).
		WillReturnRows(packageRows(pkg))
	env.mock.ExpectQuery(`INSERT INTO payments`).
		WithArgs(sqlmock.AnyArg(), booking.ID, decimal.RequireFromString("2000.00"), "inr",
			models.PaymentStatusPending, models.PaymentMethodStripe, "cs_lifecycle", "cus_123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(paymentID.String(), fixedNow, fixedNow))

	checkout, err := env.payments.InitiateCheckout(ctx, actor, booking.ID)
	require.NoError(t, err)
	require.Equal(t, paymentID, checkout.PaymentID)
	assert.Equal(t, "2000.00", checkout.Amount.StringFixed(2))

	// Confirmation deducts exactly the booked seats
	payment := testPayment(booking, "2000.00", models.PaymentStatusPending, "cs_lifecycle")
	payment.ID = paymentID
	session := paidSession("cs_lifecycle")
	session.AmountTotal = decimal.RequireFromString("2000.00")
	env.provider.session = session

	expectConfirmLookups(env, booking, payment)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(bookingRows(booking))
	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(paymentRows(payment))
	env.mock.ExpectExec(`UPDATE payments SET status = 'success'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WithArgs(models.BookingStatusConfirmed, booking.ID, models.BookingStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats - \$1`).
		WithArgs(2, pkg.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	result, err := env.payments.ConfirmSuccess(ctx, actor, "cs_lifecycle", booking.ID)
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusConfirmed, result.BookingStatus)

	// Cancelling restores the same seats and refunds 85% of the same amount
	confirmed := *booking
	confirmed.Status = models.BookingStatusConfirmed
	paid := *payment
	paid.Status = models.PaymentStatusSuccess

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.ID).
		WillReturnRows(bookingRows(&confirmed))
	env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(booking.ID).
		WillReturnRows(paymentRows(&paid))
	env.mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WithArgs(models.BookingStatusCancelled, booking.ID, models.BookingStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE packages SET available_seats = available_seats \+ \$1`).
		WithArgs(2, pkg.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE payments SET status = 'refunded', refund_amount = \$2`).
		WithArgs(paymentID, decimal.RequireFromString("1700.00")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	summary, err := env.bookings.Cancel(ctx, actor, booking.ID)
	require.NoError(t, err)
	assert.True(t, summary.Refunded)
	assert.Equal(t, 2, summary.SeatsRestored)
	assert.Equal(t, "2000.00", summary.OriginalAmount.StringFixed(2))
	assert.Equal(t, "1700.00", summary.RefundAmount.StringFixed(2))
	assert.Equal(t, "300.00", summary.CancellationFee.StringFixed(2))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPaymentServiceCheckProvider(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.payments.CheckProvider(context.Background()))

	env.provider.pingErr = errors.New("invalid api key")
	var pErr *models.ProviderError
	assert.ErrorAs(t, env.payments.CheckProvider(context.Background()), &pErr)
}
