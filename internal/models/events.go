package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventHeader is carried by every domain event
type EventHeader struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

// NewEventHeader creates a header with a fresh id
func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

// BookingConfirmed is published when a payment is reconciled and seats are deducted
type BookingConfirmed struct {
	Header        EventHeader     `json:"header"`
	BookingID     uuid.UUID       `json:"booking_id"`
	PackageID     uuid.UUID       `json:"package_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	SeatCount     int             `json:"seat_count"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CustomerEmail string          `json:"customer_email"`
}

// BookingCancelled is published when a booking is cancelled
type BookingCancelled struct {
	Header          EventHeader     `json:"header"`
	BookingID       uuid.UUID       `json:"booking_id"`
	PackageID       uuid.UUID       `json:"package_id"`
	SeatsRestored   int             `json:"seats_restored"`
	Refunded        bool            `json:"refunded"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	Currency        string          `json:"currency"`
	CustomerEmail   string          `json:"customer_email"`
}
