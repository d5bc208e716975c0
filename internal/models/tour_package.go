package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TourPackage represents a bookable travel package
type TourPackage struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Description    string          `json:"description" db:"description"`
	Location       string          `json:"location" db:"location"`
	Price          decimal.Decimal `json:"price" db:"price"`
	StartDate      time.Time       `json:"start_date" db:"start_date"`
	EndDate        time.Time       `json:"end_date" db:"end_date"`
	AvailableSeats int             `json:"available_seats" db:"available_seats"`
	ImageURL       *string         `json:"image_url,omitempty" db:"image_url"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// DurationDays returns the whole number of days between start and end date
func (p *TourPackage) DurationDays() int {
	return int(p.EndDate.Sub(p.StartDate).Hours() / 24)
}

// TotalPrice returns the price for the given number of seats
func (p *TourPackage) TotalPrice(seats int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(seats)))
}

// PackageRequest is the admin payload for creating or updating a package
type PackageRequest struct {
	Name           string          `json:"name" binding:"required,max=100"`
	Description    string          `json:"description" binding:"required,max=1000"`
	Location       string          `json:"location" binding:"required,max=100"`
	Price          decimal.Decimal `json:"price"`
	StartDate      time.Time       `json:"start_date" binding:"required"`
	EndDate        time.Time       `json:"end_date" binding:"required"`
	AvailableSeats int             `json:"available_seats" binding:"required,min=1,max=100"`
	ImageURL       *string         `json:"image_url,omitempty" binding:"omitempty,url,max=500"`
}

// Apply copies the request fields onto a package
func (r *PackageRequest) Apply(p *TourPackage) {
	p.Name = r.Name
	p.Description = r.Description
	p.Location = r.Location
	p.Price = r.Price
	p.StartDate = r.StartDate
	p.EndDate = r.EndDate
	p.AvailableSeats = r.AvailableSeats
	p.ImageURL = r.ImageURL
}

// PackageSearchFilter narrows the package catalogue
type PackageSearchFilter struct {
	Location  string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	StartDate *time.Time
}

// PackageDetails is a package with its booking availability
type PackageDetails struct {
	TourPackage
	AvailableForBooking bool `json:"available_for_booking"`
}
