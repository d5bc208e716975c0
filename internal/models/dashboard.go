package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PackageBookingCount is the number of bookings made on one package
type PackageBookingCount struct {
	PackageID    uuid.UUID `json:"package_id" db:"package_id"`
	PackageName  string    `json:"package_name" db:"package_name"`
	BookingCount int       `json:"booking_count" db:"booking_count"`
}

// PaymentStatusCounts is the distribution of bookings by payment outcome
type PaymentStatusCounts struct {
	Paid     int `json:"paid" db:"paid"`
	Refunded int `json:"refunded" db:"refunded"`
	Failed   int `json:"failed" db:"failed"`
	NotPaid  int `json:"not_paid" db:"not_paid"`
}

// DashboardStats is the admin overview of revenue, bookings and inventory
type DashboardStats struct {
	TotalRevenue      decimal.Decimal       `json:"total_revenue"`
	TotalRefunds      decimal.Decimal       `json:"total_refunds"`
	TotalBookings     int                   `json:"total_bookings"`
	ActiveBookings    int                   `json:"active_bookings"`
	TotalPackages     int                   `json:"total_packages"`
	ActivePackages    int                   `json:"active_packages"`
	BookingsByPackage []PackageBookingCount `json:"bookings_by_package"`
	PaymentStatuses   PaymentStatusCounts   `json:"payment_statuses"`
}
