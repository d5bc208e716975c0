package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourbook/booking-backend/internal/models"
)

const bookingColumns = `id, package_id, owner_user_id, seat_count, status,
	customer_name, customer_email, customer_phone, created_at, updated_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a new booking. Inventory is not touched.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `
		INSERT INTO bookings (
			id, package_id, owner_user_id, seat_count, status,
			customer_name, customer_email, customer_phone, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.PackageID, b.OwnerUserID, b.SeatCount, b.Status,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetByIDForUpdate locks the booking row for the rest of the transaction
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	if err := tx.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &b, nil
}

// TransitionStatus moves a booking from one status to another.
// Returns false when the booking was no longer in the expected status.
func (r *BookingRepository) TransitionStatus(
	ctx context.Context,
	tx *sqlx.Tx,
	id uuid.UUID,
	from, to models.BookingStatus,
) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid booking transition %s -> %s", from, to)
	}

	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := tx.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

const bookingSummaryQuery = `
	SELECT
		b.id, b.package_id, b.owner_user_id, b.seat_count, b.status,
		b.customer_name, b.customer_email, b.customer_phone, b.created_at, b.updated_at,
		p.name AS package_name, p.location, p.start_date, p.end_date,
		pay.status AS payment_status, pay.amount, pay.refund_amount
	FROM bookings b
	JOIN packages p ON p.id = b.package_id
	LEFT JOIN payments pay ON pay.booking_id = b.id`

// ListByOwner returns the bookings of a user with their package and payment state
func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.BookingSummary, error) {
	bookings := []models.BookingSummary{}
	query := bookingSummaryQuery + ` WHERE b.owner_user_id = $1 ORDER BY b.created_at DESC`

	if err := r.db.SelectContext(ctx, &bookings, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListAll returns every booking, newest first, for the admin view
func (r *BookingRepository) ListAll(ctx context.Context, limit, offset int) ([]models.BookingSummary, error) {
	bookings := []models.BookingSummary{}
	query := bookingSummaryQuery + ` ORDER BY b.created_at DESC LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &bookings, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListByPackage returns every booking on a package
func (r *BookingRepository) ListByPackage(ctx context.Context, packageID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE package_id = $1`

	if err := r.db.SelectContext(ctx, &bookings, query, packageID); err != nil {
		return nil, fmt.Errorf("failed to list package bookings: %w", err)
	}
	return bookings, nil
}
