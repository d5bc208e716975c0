package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourbook/booking-backend/internal/models"
)

const packageColumns = `id, name, description, location, price, start_date, end_date,
	available_seats, image_url, created_at, updated_at`

// PackageRepository handles tour package persistence and seat inventory
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository creates a new PackageRepository
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create inserts a new package
func (r *PackageRepository) Create(ctx context.Context, p *models.TourPackage) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO packages (
			id, name, description, location, price, start_date, end_date,
			available_seats, image_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Location, p.Price, p.StartDate, p.EndDate,
		p.AvailableSeats, p.ImageURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of a package
func (r *PackageRepository) Update(ctx context.Context, p *models.TourPackage) error {
	p.UpdatedAt = time.Now()

	query := `
		UPDATE packages SET
			name = $2, description = $3, location = $4, price = $5,
			start_date = $6, end_date = $7, available_seats = $8,
			image_url = $9, updated_at = $10
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Location, p.Price,
		p.StartDate, p.EndDate, p.AvailableSeats,
		p.ImageURL, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a package. Bookings and payments are removed by cascade.
func (r *PackageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	return nil
}

// GetByID retrieves a package by ID
func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TourPackage, error) {
	var p models.TourPackage
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`

	err := r.db.GetContext(ctx, &p, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return &p, nil
}

// List returns every package ordered by start date
func (r *PackageRepository) List(ctx context.Context) ([]models.TourPackage, error) {
	return r.Search(ctx, models.PackageSearchFilter{})
}

// Search returns packages matching the filter ordered by start date
func (r *PackageRepository) Search(ctx context.Context, filter models.PackageSearchFilter) ([]models.TourPackage, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if location := strings.TrimSpace(filter.Location); location != "" {
		args = append(args, "%"+location+"%")
		conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		conditions = append(conditions, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conditions = append(conditions, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conditions = append(conditions, fmt.Sprintf("start_date >= $%d", len(args)))
	}

	query := `SELECT ` + packageColumns + ` FROM packages`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY start_date ASC`

	packages := []models.TourPackage{}
	if err := r.db.SelectContext(ctx, &packages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search packages: %w", err)
	}
	return packages, nil
}

// GetByIDTx reads a package inside a transaction
func (r *PackageRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.TourPackage, error) {
	var p models.TourPackage
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`

	if err := tx.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return &p, nil
}

// DecrementSeats removes seats from a package only if enough remain.
// Returns false when the guard rejected the update.
func (r *PackageRepository) DecrementSeats(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, seats int) (bool, error) {
	query := `
		UPDATE packages
		SET available_seats = available_seats - $1, updated_at = NOW()
		WHERE id = $2 AND available_seats >= $1`

	result, err := tx.ExecContext(ctx, query, seats, id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// RestoreSeats gives seats back to a package
func (r *PackageRepository) RestoreSeats(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, seats int) error {
	query := `
		UPDATE packages
		SET available_seats = available_seats + $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := tx.ExecContext(ctx, query, seats, id); err != nil {
		return fmt.Errorf("failed to restore seats: %w", err)
	}
	return nil
}
