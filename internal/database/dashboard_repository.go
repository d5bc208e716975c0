package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tourbook/booking-backend/internal/models"
)

// DashboardRepository runs the aggregate queries behind the admin dashboard
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new DashboardRepository
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// GetStats collects revenue, booking and inventory figures
func (r *DashboardRepository) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{
		BookingsByPackage: []models.PackageBookingCount{},
	}

	var money struct {
		Revenue decimal.Decimal `db:"revenue"`
		Refunds decimal.Decimal `db:"refunds"`
	}
	moneyQuery := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'success'), 0) AS revenue,
			COALESCE(SUM(refund_amount) FILTER (WHERE status = 'refunded'), 0) AS refunds
		FROM payments`
	if err := r.db.GetContext(ctx, &money, moneyQuery); err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	stats.TotalRevenue = money.Revenue
	stats.TotalRefunds = money.Refunds

	var bookings struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	bookingQuery := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS active
		FROM bookings`
	if err := r.db.GetContext(ctx, &bookings, bookingQuery); err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	stats.TotalBookings = bookings.Total
	stats.ActiveBookings = bookings.Active

	var packages struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	packageQuery := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE available_seats > 0) AS active
		FROM packages`
	if err := r.db.GetContext(ctx, &packages, packageQuery); err != nil {
		return nil, fmt.Errorf("failed to count packages: %w", err)
	}
	stats.TotalPackages = packages.Total
	stats.ActivePackages = packages.Active

	perPackageQuery := `
		SELECT p.id AS package_id, p.name AS package_name, COUNT(b.id) AS booking_count
		FROM packages p
		JOIN bookings b ON b.package_id = p.id
		GROUP BY p.id, p.name
		ORDER BY booking_count DESC, p.name ASC`
	if err := r.db.SelectContext(ctx, &stats.BookingsByPackage, perPackageQuery); err != nil {
		return nil, fmt.Errorf("failed to count bookings per package: %w", err)
	}

	statusQuery := `
		SELECT
			COUNT(*) FILTER (WHERE pay.status = 'success') AS paid,
			COUNT(*) FILTER (WHERE pay.status = 'refunded') AS refunded,
			COUNT(*) FILTER (WHERE pay.status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE pay.id IS NULL OR pay.status IN ('pending', 'cancelled')) AS not_paid
		FROM bookings b
		LEFT JOIN payments pay ON pay.booking_id = b.id`
	if err := r.db.GetContext(ctx, &stats.PaymentStatuses, statusQuery); err != nil {
		return nil, fmt.Errorf("failed to count payment statuses: %w", err)
	}

	return stats, nil
}
