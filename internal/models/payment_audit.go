package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventCheckoutInitiated      PaymentEventType = "checkout_initiated"
	PaymentEventProviderError          PaymentEventType = "provider_error"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventStillPending           PaymentEventType = "payment_still_pending"
	PaymentEventCancelled              PaymentEventType = "payment_cancelled"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed   PaymentEventType = "booking_confirmation_failed"
	PaymentEventRefundRecorded         PaymentEventType = "refund_recorded"
	PaymentEventReceiptResolved        PaymentEventType = "receipt_resolved"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser           PaymentEventSource = "user"
	PaymentSourceAdmin          PaymentEventSource = "admin"
	PaymentSourceRedirect       PaymentEventSource = "checkout_redirect"
	PaymentSourceReconciliation PaymentEventSource = "reconciliation"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	BookingID   uuid.UUID          `json:"booking_id" db:"booking_id"`
	PaymentID   *uuid.UUID         `json:"payment_id,omitempty" db:"payment_id"`
	SessionID   *string            `json:"session_id,omitempty" db:"session_id"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	Amount        decimal.NullDecimal `json:"amount" db:"amount"`
	Currency      *string             `json:"currency,omitempty" db:"currency"`
	PaymentStatus *string             `json:"payment_status,omitempty" db:"payment_status"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	Details      JSONB   `json:"details,omitempty" db:"details"`

	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty" db:"actor_user_id"`
	IPAddress   *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   *string    `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo  JSONB      `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(bookingID uuid.UUID, eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		BookingID:   bookingID,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetPayment links the audit to a payment row and its checkout session
func (pa *PaymentAudit) SetPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	pa.PaymentID = &p.ID
	pa.SessionID = p.StripeSessionID
	pa.Amount = decimal.NewNullDecimal(p.Amount)
	if p.Currency != "" {
		currency := p.Currency
		pa.Currency = &currency
	}
	status := string(p.Status)
	pa.PaymentStatus = &status
	return pa
}

// SetSession sets the provider checkout session id
func (pa *PaymentAudit) SetSession(sessionID string) *PaymentAudit {
	if sessionID != "" {
		pa.SessionID = &sessionID
	}
	return pa
}

// SetPaymentStatus overrides the recorded payment status
func (pa *PaymentAudit) SetPaymentStatus(status PaymentStatus) *PaymentAudit {
	s := string(status)
	pa.PaymentStatus = &s
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetDetail adds a free-form detail to the entry
func (pa *PaymentAudit) SetDetail(key string, value interface{}) *PaymentAudit {
	if pa.Details == nil {
		pa.Details = JSONB{}
	}
	pa.Details[key] = value
	return pa
}

// SetActor records who triggered the event and from where
func (pa *PaymentAudit) SetActor(actor Actor, deviceInfo map[string]interface{}) *PaymentAudit {
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		pa.ActorUserID = &id
	}
	if actor.IPAddress != "" {
		ip := actor.IPAddress
		pa.IPAddress = &ip
	}
	if actor.UserAgent != "" {
		ua := actor.UserAgent
		pa.UserAgent = &ua
	}
	if deviceInfo != nil {
		pa.DeviceInfo = JSONB(deviceInfo)
	}
	return pa
}
