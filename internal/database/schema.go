package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS packages (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		description VARCHAR(1000) NOT NULL,
		location VARCHAR(100) NOT NULL,
		price NUMERIC(18,2) NOT NULL CHECK (price > 0),
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0),
		image_url VARCHAR(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_date > start_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_packages_start_date ON packages (start_date)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		package_id UUID NOT NULL REFERENCES packages (id) ON DELETE CASCADE,
		owner_user_id UUID NOT NULL,
		seat_count INTEGER NOT NULL CHECK (seat_count BETWEEN 1 AND 10),
		status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled')),
		customer_name VARCHAR(100) NOT NULL,
		customer_email VARCHAR(100) NOT NULL,
		customer_phone VARCHAR(15) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_owner ON bookings (owner_user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_package ON bookings (package_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL UNIQUE REFERENCES bookings (id) ON DELETE CASCADE,
		amount NUMERIC(18,2) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'success', 'failed', 'refunded', 'cancelled')),
		refund_amount NUMERIC(18,2),
		payment_method VARCHAR(20) NOT NULL,
		payment_date TIMESTAMPTZ,
		stripe_session_id VARCHAR(255),
		stripe_customer_id VARCHAR(255),
		stripe_payment_intent_id VARCHAR(255),
		stripe_invoice_id VARCHAR(255),
		receipt_url VARCHAR(1000),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((status = 'refunded') = (refund_amount IS NOT NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_session ON payments (stripe_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS payment_audits (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL,
		payment_id UUID,
		session_id VARCHAR(255),
		event_type VARCHAR(50) NOT NULL,
		event_source VARCHAR(30) NOT NULL,
		amount NUMERIC(18,2),
		currency VARCHAR(3),
		payment_status VARCHAR(20),
		error_message TEXT,
		details JSONB,
		actor_user_id UUID,
		ip_address VARCHAR(64),
		user_agent TEXT,
		device_info JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_audits_booking ON payment_audits (booking_id, created_at)`,
}

// EnsureSchema creates the tables used by the booking backend if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
