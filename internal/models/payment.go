package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of the single payment row of a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // Checkout session created
	PaymentStatusSuccess   PaymentStatus = "success"   // Provider confirmed the charge
	PaymentStatusFailed    PaymentStatus = "failed"    // Provider reported failure
	PaymentStatusRefunded  PaymentStatus = "refunded"  // Booking cancelled after payment
	PaymentStatusCancelled PaymentStatus = "cancelled" // Customer abandoned checkout
)

// pending -> pending covers a customer restarting checkout with a fresh session
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusPending},
	PaymentStatusCancelled: {PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusPending, PaymentStatusSuccess},
	PaymentStatusSuccess:   {PaymentStatusRefunded},
}

// IsValid reports whether the status is one of the known values
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving to next is allowed
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethodStripe is recorded on payments made through hosted checkout
const PaymentMethodStripe = "stripe"

// Payment is the payment record of a booking. There is at most one per booking.
type Payment struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	BookingID             uuid.UUID           `json:"booking_id" db:"booking_id"`
	Amount                decimal.Decimal     `json:"amount" db:"amount"`
	Currency              string              `json:"currency" db:"currency"`
	Status                PaymentStatus       `json:"status" db:"status"`
	RefundAmount          decimal.NullDecimal `json:"refund_amount" db:"refund_amount"`
	PaymentMethod         string              `json:"payment_method" db:"payment_method"`
	PaymentDate           *time.Time          `json:"payment_date,omitempty" db:"payment_date"`
	StripeSessionID       *string             `json:"stripe_session_id,omitempty" db:"stripe_session_id"`
	StripeCustomerID      *string             `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	StripePaymentIntentID *string             `json:"stripe_payment_intent_id,omitempty" db:"stripe_payment_intent_id"`
	StripeInvoiceID       *string             `json:"stripe_invoice_id,omitempty" db:"stripe_invoice_id"`
	ReceiptURL            *string             `json:"receipt_url,omitempty" db:"receipt_url"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}

// CheckoutSession is returned to the client to redirect into hosted checkout
type CheckoutSession struct {
	BookingID uuid.UUID       `json:"booking_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	SessionID string          `json:"session_id"`
	URL       string          `json:"url"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// ConfirmationResult is the outcome of reconciling a successful checkout
type ConfirmationResult struct {
	BookingID        uuid.UUID     `json:"booking_id"`
	PaymentID        uuid.UUID     `json:"payment_id"`
	BookingStatus    BookingStatus `json:"booking_status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	ReceiptURL       *string       `json:"receipt_url,omitempty"`
	AlreadyConfirmed bool          `json:"already_confirmed"`
}

// Receipt is the customer-facing receipt link of a payment
type Receipt struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Available bool      `json:"available"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source,omitempty"`
}
