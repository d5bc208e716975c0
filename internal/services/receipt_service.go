package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
)

const (
	ReceiptSourceStored    = "stored"
	ReceiptSourceInvoice   = "invoice"
	ReceiptSourceSession   = "session_invoice"
	ReceiptSourceCharge    = "charge"
	ReceiptSourceGenerated = "generated_invoice"
)

// errStrategySkipped marks a strategy whose inputs are missing on the payment
var errStrategySkipped = errors.New("strategy not applicable")

// receiptLink is what a strategy resolves
type receiptLink struct {
	URL       string
	InvoiceID string
}

type receiptStrategy struct {
	name    string
	resolve func(ctx context.Context, p *models.Payment) (*receiptLink, error)
}

// ReceiptService finds a customer-facing receipt link for a payment by trying
// a fixed list of lookups in order. The first one that returns a link wins.
type ReceiptService struct {
	provider   PaymentProvider
	payments   *database.PaymentRepository
	logger     *logrus.Logger
	strategies []receiptStrategy
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(provider PaymentProvider, payments *database.PaymentRepository, logger *logrus.Logger) *ReceiptService {
	s := &ReceiptService{
		provider: provider,
		payments: payments,
		logger:   logger,
	}
	s.strategies = []receiptStrategy{
		{name: ReceiptSourceInvoice, resolve: s.fromInvoice},
		{name: ReceiptSourceSession, resolve: s.fromSession},
		{name: ReceiptSourceCharge, resolve: s.fromCharge},
		{name: ReceiptSourceGenerated, resolve: s.fromGeneratedInvoice},
	}
	return s
}

// Resolve runs the strategies and returns the first receipt found.
// When every strategy fails the receipt is reported as unavailable.
func (s *ReceiptService) Resolve(ctx context.Context, p *models.Payment) models.Receipt {
	receipt, _ := s.resolve(ctx, p)
	return receipt
}

func (s *ReceiptService) resolve(ctx context.Context, p *models.Payment) (models.Receipt, *receiptLink) {
	for _, strategy := range s.strategies {
		link, err := strategy.resolve(ctx, p)
		if errors.Is(err, errStrategySkipped) {
			continue
		}
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"payment_id": p.ID,
				"strategy":   strategy.name,
			}).Warn("Receipt lookup failed, trying next strategy")
			continue
		}
		if link == nil || link.URL == "" {
			continue
		}
		return models.Receipt{PaymentID: p.ID, Available: true, URL: link.URL, Source: strategy.name}, link
	}

	s.logger.WithField("payment_id", p.ID).Warn("No receipt could be resolved")
	return models.Receipt{PaymentID: p.ID, Available: false}, nil
}

// ResolveAndStore resolves a receipt and persists the link on the payment
func (s *ReceiptService) ResolveAndStore(ctx context.Context, p *models.Payment) (models.Receipt, error) {
	receipt, link := s.resolve(ctx, p)
	if !receipt.Available {
		return receipt, nil
	}

	var invoiceID *string
	if link.InvoiceID != "" {
		invoiceID = &link.InvoiceID
	}
	if err := s.payments.UpdateReceipt(ctx, p.ID, invoiceID, receipt.URL); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func (s *ReceiptService) fromInvoice(ctx context.Context, p *models.Payment) (*receiptLink, error) {
	if p.StripeInvoiceID == nil || *p.StripeInvoiceID == "" {
		return nil, errStrategySkipped
	}
	url, err := s.provider.GetInvoiceReceiptURL(ctx, *p.StripeInvoiceID)
	if err != nil {
		return nil, err
	}
	return &receiptLink{URL: url, InvoiceID: *p.StripeInvoiceID}, nil
}

func (s *ReceiptService) fromSession(ctx context.Context, p *models.Payment) (*receiptLink, error) {
	if p.StripeSessionID == nil || *p.StripeSessionID == "" {
		return nil, errStrategySkipped
	}
	session, err := s.provider.GetCheckoutSession(ctx, *p.StripeSessionID)
	if err != nil {
		return nil, err
	}

	// Remember what the session knows so later strategies can use it
	if p.StripePaymentIntentID == nil && session.PaymentIntentID != "" {
		p.StripePaymentIntentID = &session.PaymentIntentID
	}
	if p.StripeCustomerID == nil && session.CustomerID != "" {
		p.StripeCustomerID = &session.CustomerID
	}

	if session.InvoiceURL == "" {
		return nil, nil
	}
	return &receiptLink{URL: session.InvoiceURL, InvoiceID: session.InvoiceID}, nil
}

func (s *ReceiptService) fromCharge(ctx context.Context, p *models.Payment) (*receiptLink, error) {
	if p.StripePaymentIntentID == nil || *p.StripePaymentIntentID == "" {
		return nil, errStrategySkipped
	}
	url, err := s.provider.GetChargeReceiptURL(ctx, *p.StripePaymentIntentID)
	if err != nil {
		return nil, err
	}
	return &receiptLink{URL: url}, nil
}

func (s *ReceiptService) fromGeneratedInvoice(ctx context.Context, p *models.Payment) (*receiptLink, error) {
	if p.StripeCustomerID == nil || *p.StripeCustomerID == "" {
		return nil, errStrategySkipped
	}
	invoice, err := s.provider.CreateInvoice(ctx, InvoiceRequest{
		CustomerID:  *p.StripeCustomerID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: fmt.Sprintf("Tour package booking %s", p.BookingID),
		BookingID:   p.BookingID,
	})
	if err != nil {
		return nil, err
	}
	return &receiptLink{URL: invoice.HostedURL, InvoiceID: invoice.ID}, nil
}

// lookupForSession resolves a receipt for a session that was just confirmed paid.
// The session's own invoice is used directly and the chain only runs without one.
func (s *ReceiptService) lookupForSession(ctx context.Context, p *models.Payment, session *ProviderSession) *receiptLink {
	if session.InvoiceURL != "" {
		return &receiptLink{URL: session.InvoiceURL, InvoiceID: session.InvoiceID}
	}

	lookup := *p
	if session.InvoiceID != "" {
		lookup.StripeInvoiceID = &session.InvoiceID
	}
	if session.PaymentIntentID != "" {
		lookup.StripePaymentIntentID = &session.PaymentIntentID
	}
	if session.CustomerID != "" {
		lookup.StripeCustomerID = &session.CustomerID
	}
	// The session was just fetched, skip fetching it again
	lookup.StripeSessionID = nil

	_, link := s.resolve(ctx, &lookup)
	return link
}
