package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Reserved, awaiting payment
	BookingStatusConfirmed BookingStatus = "confirmed" // Paid, seats deducted
	BookingStatusCancelled BookingStatus = "cancelled" // Terminal
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
}

// IsValid reports whether the status is one of the known values
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving to next is allowed
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const (
	MinSeatsPerBooking = 1
	MaxSeatsPerBooking = 10
)

// Booking represents a customer's reservation on a tour package
type Booking struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	PackageID     uuid.UUID     `json:"package_id" db:"package_id"`
	OwnerUserID   uuid.UUID     `json:"owner_user_id" db:"owner_user_id"`
	SeatCount     int           `json:"seat_count" db:"seat_count"`
	Status        BookingStatus `json:"status" db:"status"`
	CustomerName  string        `json:"customer_name" db:"customer_name"`
	CustomerEmail string        `json:"customer_email" db:"customer_email"`
	CustomerPhone string        `json:"customer_phone" db:"customer_phone"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateBookingRequest represents the request to reserve seats on a package
type CreateBookingRequest struct {
	PackageID     uuid.UUID `json:"package_id" binding:"required"`
	Seats         int       `json:"seats" binding:"required,min=1,max=10"`
	CustomerName  string    `json:"customer_name" binding:"required,min=2,max=100"`
	CustomerEmail string    `json:"customer_email" binding:"required,email,max=100"`
	CustomerPhone string    `json:"customer_phone" binding:"required,min=10,max=15"`
}

// BookingSummary is a booking joined with its package and payment, as shown in "my bookings"
type BookingSummary struct {
	Booking
	PackageName   string              `json:"package_name" db:"package_name"`
	Location      string              `json:"location" db:"location"`
	StartDate     time.Time           `json:"start_date" db:"start_date"`
	EndDate       time.Time           `json:"end_date" db:"end_date"`
	PaymentStatus *PaymentStatus      `json:"payment_status,omitempty" db:"payment_status"`
	Amount        decimal.NullDecimal `json:"amount" db:"amount"`
	RefundAmount  decimal.NullDecimal `json:"refund_amount" db:"refund_amount"`
}

// CancelSummary describes the outcome of a cancellation
type CancelSummary struct {
	BookingID       uuid.UUID       `json:"booking_id"`
	Refunded        bool            `json:"refunded"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	SeatsRestored   int             `json:"seats_restored"`
}

// BookingConfirmation is the receipt-style view of a paid booking
type BookingConfirmation struct {
	Booking    Booking     `json:"booking"`
	Package    TourPackage `json:"package"`
	Payment    Payment     `json:"payment"`
	ReceiptURL *string     `json:"receipt_url,omitempty"`
}
