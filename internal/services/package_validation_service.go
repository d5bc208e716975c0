package services

import (
	"time"

	"github.com/tourbook/booking-backend/internal/models"
)

const (
	MinPackageDurationDays = 1
	MaxPackageDurationDays = 365
)

// PackageValidationService holds the business rules for packages
type PackageValidationService struct {
	now func() time.Time
}

// NewPackageValidationService creates a validation service using the wall clock
func NewPackageValidationService() *PackageValidationService {
	return &PackageValidationService{now: time.Now}
}

// NewPackageValidationServiceWithClock creates a validation service with a fixed clock
func NewPackageValidationServiceWithClock(now func() time.Time) *PackageValidationService {
	return &PackageValidationService{now: now}
}

// today returns midnight of the current day in the clock's location
func (s *PackageValidationService) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// ValidatePackage returns every rule the package violates. The start date is
// only required to be in the future when the package is being created.
func (s *PackageValidationService) ValidatePackage(pkg *models.TourPackage, isEdit bool) []string {
	var violations []string

	if !pkg.EndDate.After(pkg.StartDate) {
		violations = append(violations, "End date must be after start date.")
	}

	if !isEdit && !pkg.StartDate.After(s.today()) {
		violations = append(violations, "Start date must be in the future.")
	}

	duration := pkg.DurationDays()
	if duration < MinPackageDurationDays {
		violations = append(violations, "Package duration must be at least 1 day.")
	}
	if duration > MaxPackageDurationDays {
		violations = append(violations, "Package duration cannot exceed 365 days.")
	}

	if !pkg.Price.IsPositive() {
		violations = append(violations, "Price must be greater than zero.")
	}

	return violations
}

// IsAvailableForBooking reports whether new bookings can be made on the package
func (s *PackageValidationService) IsAvailableForBooking(pkg *models.TourPackage) bool {
	return pkg.AvailableSeats > 0 &&
		pkg.StartDate.After(s.today()) &&
		pkg.EndDate.After(pkg.StartDate)
}

// CanBeDeleted reports whether a package with these bookings may be deleted.
// Packages holding confirmed bookings are protected.
func (s *PackageValidationService) CanBeDeleted(bookings []models.Booking) bool {
	for _, b := range bookings {
		if b.Status == models.BookingStatusConfirmed {
			return false
		}
	}
	return true
}
