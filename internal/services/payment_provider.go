package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentProvider is the hosted checkout provider used to take payments
type PaymentProvider interface {
	// FindOrCreateCustomer returns the provider customer id for an email address
	FindOrCreateCustomer(ctx context.Context, customer CustomerDetails) (string, error)

	// CreateCheckoutSession opens a hosted checkout session for a booking
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*ProviderSession, error)

	// GetCheckoutSession looks a session up with its invoice and payment intent
	GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error)

	// GetInvoiceReceiptURL returns the hosted page of an invoice
	GetInvoiceReceiptURL(ctx context.Context, invoiceID string) (string, error)

	// GetChargeReceiptURL returns the receipt of the first charge of a payment intent
	GetChargeReceiptURL(ctx context.Context, paymentIntentID string) (string, error)

	// CreateInvoice issues and finalizes an invoice for an already collected amount
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*ProviderInvoice, error)

	// CheckConnection verifies that the provider accepts our credentials
	CheckConnection(ctx context.Context) error
}

// CustomerDetails identifies the paying customer
type CustomerDetails struct {
	Name        string
	Email       string
	Phone       string
	Description string
}

// CheckoutSessionRequest describes a single line item checkout for a booking
type CheckoutSessionRequest struct {
	BookingID     uuid.UUID
	CustomerID    string // empty when the customer lookup failed
	CustomerEmail string
	CustomerName  string
	PackageName   string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// ProviderSession is the provider's view of a checkout session
type ProviderSession struct {
	ID              string
	URL             string
	Paid            bool
	Expired         bool
	PaymentStatus   string
	CustomerID      string
	PaymentIntentID string
	InvoiceID       string
	InvoiceURL      string
	AmountTotal     decimal.Decimal
	Currency        string
}

// InvoiceRequest describes an invoice issued after the fact for a payment
type InvoiceRequest struct {
	CustomerID  string
	Amount      decimal.Decimal
	Currency    string
	Description string
	BookingID   uuid.UUID
}

// ProviderInvoice is a finalized provider invoice
type ProviderInvoice struct {
	ID        string
	HostedURL string
}

// toMinorUnits converts an amount to the smallest currency unit
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinorUnits converts the smallest currency unit back to an amount
func fromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
