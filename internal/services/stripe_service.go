package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/tourbook/booking-backend/internal/config"
)

// ErrStripeNotConfigured is returned when no secret key is set
var ErrStripeNotConfigured = errors.New("stripe secret key is not configured")

// StripeService implements PaymentProvider on top of Stripe Checkout
type StripeService struct {
	config *config.StripeConfig
	logger *logrus.Logger
	api    *client.API
}

// NewStripeService creates a new Stripe payment provider
func NewStripeService(cfg *config.StripeConfig, logger *logrus.Logger) *StripeService {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeService{
		config: cfg,
		logger: logger,
		api:    api,
	}
}

// IsConfigured reports whether a secret key is available
func (s *StripeService) IsConfigured() bool {
	return s.config.SecretKey != ""
}

func (s *StripeService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// FindOrCreateCustomer reuses the first customer with the same email or creates one
func (s *StripeService) FindOrCreateCustomer(ctx context.Context, customer CustomerDetails) (string, error) {
	if !s.IsConfigured() {
		return "", ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listParams := &stripe.CustomerListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(1)},
		Email:      stripe.String(customer.Email),
	}
	iter := s.api.Customers.List(listParams)
	if iter.Next() {
		existing := iter.Customer()
		s.logger.WithFields(logrus.Fields{
			"customer_id": existing.ID,
		}).Debug("Reusing Stripe customer")
		return existing.ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list customers: %w", err)
	}

	created, err := s.api.Customers.New(&stripe.CustomerParams{
		Params:      stripe.Params{Context: ctx},
		Email:       stripe.String(customer.Email),
		Name:        stripe.String(customer.Name),
		Phone:       stripe.String(customer.Phone),
		Description: stripe.String(customer.Description),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.WithField("customer_id", created.ID).Info("Created Stripe customer")
	return created.ID, nil
}

// CreateCheckoutSession opens a hosted checkout page for the booking total
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*ProviderSession, error) {
	if !s.IsConfigured() {
		return nil, ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.PackageName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
			InvoiceData: &stripe.CheckoutSessionInvoiceCreationInvoiceDataParams{
				Description: stripe.String(req.Description),
			},
		},
	}

	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("customer_name", req.CustomerName)
	params.AddMetadata("package_name", req.PackageName)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", req.BookingID).Error("Stripe checkout session creation failed")
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return toProviderSession(sess), nil
}

// GetCheckoutSession retrieves a session with its invoice and payment intent expanded
func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	if !s.IsConfigured() {
		return nil, ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("invoice")
	params.AddExpand("payment_intent")

	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return toProviderSession(sess), nil
}

// GetInvoiceReceiptURL returns the hosted invoice page
func (s *StripeService) GetInvoiceReceiptURL(ctx context.Context, invoiceID string) (string, error) {
	if !s.IsConfigured() {
		return "", ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	inv, err := s.api.Invoices.Get(invoiceID, &stripe.InvoiceParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return "", fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv.HostedInvoiceURL != "" {
		return inv.HostedInvoiceURL, nil
	}
	return inv.InvoicePDF, nil
}

// GetChargeReceiptURL returns the receipt of the latest charge of a payment intent
func (s *StripeService) GetChargeReceiptURL(ctx context.Context, paymentIntentID string) (string, error) {
	if !s.IsConfigured() {
		return "", ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	iter := s.api.Charges.List(&stripe.ChargeListParams{
		ListParams:    stripe.ListParams{Context: ctx, Limit: stripe.Int64(1)},
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if iter.Next() {
		return iter.Charge().ReceiptURL, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list charges: %w", err)
	}
	return "", nil
}

// CreateInvoice issues an invoice for a payment that was collected without one
func (s *StripeService) CreateInvoice(ctx context.Context, req InvoiceRequest) (*ProviderInvoice, error) {
	if !s.IsConfigured() {
		return nil, ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.api.InvoiceItems.New(&stripe.InvoiceItemParams{
		Params:      stripe.Params{Context: ctx},
		Customer:    stripe.String(req.CustomerID),
		Amount:      stripe.Int64(toMinorUnits(req.Amount)),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice item: %w", err)
	}

	invParams := &stripe.InvoiceParams{
		Params:                      stripe.Params{Context: ctx},
		Customer:                    stripe.String(req.CustomerID),
		AutoAdvance:                 stripe.Bool(false),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:                stripe.Int64(30),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		Description:                 stripe.String(req.Description),
	}
	invParams.AddMetadata("booking_id", req.BookingID.String())

	inv, err := s.api.Invoices.New(invParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	finalized, err := s.api.Invoices.FinalizeInvoice(inv.ID, &stripe.InvoiceFinalizeInvoiceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize invoice: %w", err)
	}

	return &ProviderInvoice{ID: finalized.ID, HostedURL: finalized.HostedInvoiceURL}, nil
}

// CheckConnection reads the account balance to verify the key
func (s *StripeService) CheckConnection(ctx context.Context) error {
	if !s.IsConfigured() {
		return ErrStripeNotConfigured
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.api.Balance.Get(&stripe.BalanceParams{Params: stripe.Params{Context: ctx}}); err != nil {
		return fmt.Errorf("failed to reach stripe: %w", err)
	}
	return nil
}

func toProviderSession(sess *stripe.CheckoutSession) *ProviderSession {
	ps := &ProviderSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired:       sess.Status == stripe.CheckoutSessionStatusExpired,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   fromMinorUnits(sess.AmountTotal),
		Currency:      string(sess.Currency),
	}
	if sess.Customer != nil {
		ps.CustomerID = sess.Customer.ID
	}
	if sess.PaymentIntent != nil {
		ps.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.Invoice != nil {
		ps.InvoiceID = sess.Invoice.ID
		ps.InvoiceURL = sess.Invoice.HostedInvoiceURL
	}
	return ps
}
