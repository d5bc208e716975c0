package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tourbook/booking-backend/internal/models"
)

const paymentColumns = `id, booking_id, amount, currency, status, refund_amount,
	payment_method, payment_date, stripe_session_id, stripe_customer_id,
	stripe_payment_intent_id, stripe_invoice_id, receipt_url, created_at, updated_at`

// PaymentSuccess holds the provider identifiers recorded when a payment succeeds
type PaymentSuccess struct {
	PaymentIntentID *string
	CustomerID      *string
	InvoiceID       *string
	ReceiptURL      *string
	PaidAt          time.Time
}

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// UpsertPending records a new checkout session for a booking. The single
// payment row of the booking is created or reset to pending, unless it has
// already succeeded or been refunded, in which case sql.ErrNoRows is returned.
func (r *PaymentRepository) UpsertPending(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.PaymentStatusPending
	if p.PaymentMethod == "" {
		p.PaymentMethod = models.PaymentMethodStripe
	}

	query := `
		INSERT INTO payments (
			id, booking_id, amount, currency, status, payment_method,
			stripe_session_id, stripe_customer_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (booking_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			payment_method = EXCLUDED.payment_method,
			stripe_session_id = EXCLUDED.stripe_session_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_payment_intent_id = NULL,
			stripe_invoice_id = NULL,
			receipt_url = NULL,
			payment_date = NULL,
			updated_at = NOW()
		WHERE payments.status IN ('pending', 'cancelled', 'failed')
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.BookingID, p.Amount, p.Currency, p.Status, p.PaymentMethod,
		p.StripeSessionID, p.StripeCustomerID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, r.db, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByBookingID retrieves the payment of a booking
func (r *PaymentRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, r.db, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID)
}

// GetBySessionID retrieves a payment by its checkout session id
func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.getOne(ctx, r.db, `SELECT `+paymentColumns+` FROM payments WHERE stripe_session_id = $1`, sessionID)
}

// GetByBookingIDForUpdate locks the payment row of a booking
func (r *PaymentRepository) GetByBookingIDForUpdate(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, tx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 FOR UPDATE`, bookingID)
}

func (r *PaymentRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*models.Payment, error) {
	var p models.Payment
	if err := sqlx.GetContext(ctx, q, &p, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// MarkSuccess moves an unsettled payment to success. A cancelled or failed
// payment can still succeed when the customer pays the open checkout session.
// Returns false when the payment was already settled.
func (r *PaymentRepository) MarkSuccess(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, s PaymentSuccess) (bool, error) {
	query := `
		UPDATE payments SET
			status = 'success',
			payment_date = $2,
			stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id),
			stripe_customer_id = COALESCE($4, stripe_customer_id),
			stripe_invoice_id = COALESCE($5, stripe_invoice_id),
			receipt_url = COALESCE($6, receipt_url),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'cancelled', 'failed')`

	result, err := tx.ExecContext(ctx, query,
		id, s.PaidAt, s.PaymentIntentID, s.CustomerID, s.InvoiceID, s.ReceiptURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment successful: %w", err)
	}
	return singleRowAffected(result)
}

// MarkRefunded records the refund of a successful payment.
// Returns false when the payment was not in success.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, refund decimal.Decimal) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'refunded', refund_amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'success'`

	result, err := tx.ExecContext(ctx, query, id, refund)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	return singleRowAffected(result)
}

// MarkCancelled moves a pending payment to cancelled inside a transaction.
// Returns false when the payment was not pending.
func (r *PaymentRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel payment: %w", err)
	}
	return singleRowAffected(result)
}

// MarkCancelledByBooking cancels the pending payment of a booking outside a transaction
func (r *PaymentRepository) MarkCancelledByBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled', updated_at = NOW()
		WHERE booking_id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel payment: %w", err)
	}
	return singleRowAffected(result)
}

// MarkFailed moves a payment whose checkout session expired unpaid to failed
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'cancelled')`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return singleRowAffected(result)
}

// UpdateReceipt stores the receipt link resolved for a payment
func (r *PaymentRepository) UpdateReceipt(ctx context.Context, id uuid.UUID, invoiceID *string, receiptURL string) error {
	query := `
		UPDATE payments
		SET receipt_url = $2, stripe_invoice_id = COALESCE($3, stripe_invoice_id), updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, receiptURL, invoiceID); err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	return nil
}

// ListStalePending returns the unsettled payments of pending bookings that have
// not changed since before the cutoff. Payments cancelled from the checkout page
// are included since their session can still be paid until it expires.
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN ('pending', 'cancelled')
			AND stripe_session_id IS NOT NULL
			AND updated_at < $1
			AND booking_id IN (SELECT id FROM bookings WHERE status = 'pending')
		ORDER BY updated_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &payments, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

func singleRowAffected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}
