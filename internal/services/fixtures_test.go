package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
)

var (
	packageCols = []string{
		"id", "name", "description", "location", "price", "start_date", "end_date",
		"available_seats", "image_url", "created_at", "updated_at",
	}
	bookingCols = []string{
		"id", "package_id", "owner_user_id", "seat_count", "status",
		"customer_name", "customer_email", "customer_phone", "created_at", "updated_at",
	}
	paymentCols = []string{
		"id", "booking_id", "amount", "currency", "status", "refund_amount",
		"payment_method", "payment_date", "stripe_session_id", "stripe_customer_id",
		"stripe_payment_intent_id", "stripe_invoice_id", "receipt_url", "created_at", "updated_at",
	}
)

// fakeProvider is an in-memory PaymentProvider
type fakeProvider struct {
	customerID  string
	customerErr error

	createdSession *ProviderSession
	createErr      error
	lastCheckout   CheckoutSessionRequest

	session    *ProviderSession
	getErr     error
	getCalls   int
	invoiceURL string
	invoiceErr error
	chargeURL  string
	chargeErr  error

	generated   *ProviderInvoice
	generateErr error
	pingErr     error

	calls []string
}

func (f *fakeProvider) FindOrCreateCustomer(ctx context.Context, customer CustomerDetails) (string, error) {
	f.calls = append(f.calls, "customer")
	return f.customerID, f.customerErr
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*ProviderSession, error) {
	f.calls = append(f.calls, "create_session")
	f.lastCheckout = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createdSession, nil
}

func (f *fakeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	f.calls = append(f.calls, "get_session")
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.session, nil
}

func (f *fakeProvider) GetInvoiceReceiptURL(ctx context.Context, invoiceID string) (string, error) {
	f.calls = append(f.calls, "invoice")
	return f.invoiceURL, f.invoiceErr
}

func (f *fakeProvider) GetChargeReceiptURL(ctx context.Context, paymentIntentID string) (string, error) {
	f.calls = append(f.calls, "charge")
	return f.chargeURL, f.chargeErr
}

func (f *fakeProvider) CreateInvoice(ctx context.Context, req InvoiceRequest) (*ProviderInvoice, error) {
	f.calls = append(f.calls, "generate_invoice")
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	if f.generated == nil {
		return nil, errors.New("no invoice configured")
	}
	return f.generated, nil
}

func (f *fakeProvider) CheckConnection(ctx context.Context) error {
	return f.pingErr
}

// fakePublisher records published events
type fakePublisher struct {
	events []any
	err    error
}

func (f *fakePublisher) PublishInTx(ctx context.Context, tx *sql.Tx, event any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// fakeAuditStore keeps audit entries in memory
type fakeAuditStore struct {
	entries []*models.PaymentAudit
}

func (f *fakeAuditStore) Log(ctx context.Context, audit *models.PaymentAudit) error {
	f.entries = append(f.entries, audit)
	return nil
}

func (f *fakeAuditStore) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	var out []*models.PaymentAudit
	for _, e := range f.entries {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) GetRecentByEventType(ctx context.Context, eventType models.PaymentEventType, hours int, limit int) ([]*models.PaymentAudit, error) {
	var out []*models.PaymentAudit
	for _, e := range f.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) eventTypes() []models.PaymentEventType {
	types := make([]models.PaymentEventType, 0, len(f.entries))
	for _, e := range f.entries {
		types = append(types, e.EventType)
	}
	return types
}

// testEnv wires every service against a sqlmock database and fakes
type testEnv struct {
	mock      sqlmock.Sqlmock
	provider  *fakeProvider
	publisher *fakePublisher
	audits    *fakeAuditStore
	bookings  *BookingService
	payments  *PaymentService
	packages  *PackageService
	receipts  *ReceiptService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	packageRepo := database.NewPackageRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)

	provider := &fakeProvider{}
	publisher := &fakePublisher{}
	audits := &fakeAuditStore{}
	auditService := NewAuditService(audits, logger)
	receipts := NewReceiptService(provider, paymentRepo, logger)
	validation := NewPackageValidationServiceWithClock(func() time.Time { return fixedNow })

	return &testEnv{
		mock:      mock,
		provider:  provider,
		publisher: publisher,
		audits:    audits,
		bookings:  NewBookingService(db, packageRepo, bookingRepo, paymentRepo, publisher, auditService, logger),
		payments: NewPaymentService(db, packageRepo, bookingRepo, paymentRepo, provider, receipts, publisher, auditService,
			PaymentServiceConfig{PublicBaseURL: "https://tours.example.com", Currency: "inr"}, logger),
		packages: NewPackageService(packageRepo, bookingRepo, validation, logger),
		receipts: receipts,
	}
}

func testPackage(seats int, price string) *models.TourPackage {
	start := fixedNow.AddDate(0, 1, 0)
	return &models.TourPackage{
		ID:             uuid.New(),
		Name:           "Kerala Backwaters",
		Description:    "Houseboat cruise",
		Location:       "Alleppey",
		Price:          decimal.RequireFromString(price),
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 4),
		AvailableSeats: seats,
	}
}

func testBooking(pkg *models.TourPackage, owner uuid.UUID, seats int, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:            uuid.New(),
		PackageID:     pkg.ID,
		OwnerUserID:   owner,
		SeatCount:     seats,
		Status:        status,
		CustomerName:  "Asha Menon",
		CustomerEmail: "asha@example.com",
		CustomerPhone: "+919876543210",
	}
}

func testPayment(b *models.Booking, amount string, status models.PaymentStatus, sessionID string) *models.Payment {
	p := &models.Payment{
		ID:            uuid.New(),
		BookingID:     b.ID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "inr",
		Status:        status,
		PaymentMethod: models.PaymentMethodStripe,
	}
	if sessionID != "" {
		p.StripeSessionID = &sessionID
	}
	return p
}

func packageRows(p *models.TourPackage) *sqlmock.Rows {
	return sqlmock.NewRows(packageCols).AddRow(
		p.ID.String(), p.Name, p.Description, p.Location, p.Price.StringFixed(2),
		p.StartDate, p.EndDate, p.AvailableSeats, nil, fixedNow, fixedNow,
	)
}

func bookingRows(bookings ...*models.Booking) *sqlmock.Rows {
	rows := sqlmock.NewRows(bookingCols)
	for _, b := range bookings {
		rows.AddRow(
			b.ID.String(), b.PackageID.String(), b.OwnerUserID.String(), b.SeatCount, string(b.Status),
			b.CustomerName, b.CustomerEmail, b.CustomerPhone, fixedNow, fixedNow,
		)
	}
	return rows
}

func paymentRows(p *models.Payment) *sqlmock.Rows {
	var session, customer, intent, invoice, receipt interface{}
	if p.StripeSessionID != nil {
		session = *p.StripeSessionID
	}
	if p.StripeCustomerID != nil {
		customer = *p.StripeCustomerID
	}
	if p.StripePaymentIntentID != nil {
		intent = *p.StripePaymentIntentID
	}
	if p.StripeInvoiceID != nil {
		invoice = *p.StripeInvoiceID
	}
	if p.ReceiptURL != nil {
		receipt = *p.ReceiptURL
	}
	var refund interface{}
	if p.RefundAmount.Valid {
		refund = p.RefundAmount.Decimal.StringFixed(2)
	}
	return sqlmock.NewRows(paymentCols).AddRow(
		p.ID.String(), p.BookingID.String(), p.Amount.StringFixed(2), p.Currency, string(p.Status), refund,
		p.PaymentMethod, nil, session, customer, intent, invoice, receipt, fixedNow, fixedNow,
	)
}

func userActor(id uuid.UUID) models.Actor {
	return models.Actor{UserID: id, Email: "asha@example.com", Roles: []string{"customer"}}
}

func adminActor() models.Actor {
	return models.Actor{UserID: uuid.New(), Email: "admin@example.com", Roles: []string{models.RoleAdmin}}
}
