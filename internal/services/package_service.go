package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
)

// PackageService manages the package catalogue
type PackageService struct {
	packages   *database.PackageRepository
	bookings   *database.BookingRepository
	validation *PackageValidationService
	logger     *logrus.Logger
}

// NewPackageService creates a new PackageService
func NewPackageService(
	packages *database.PackageRepository,
	bookings *database.BookingRepository,
	validation *PackageValidationService,
	logger *logrus.Logger,
) *PackageService {
	return &PackageService{
		packages:   packages,
		bookings:   bookings,
		validation: validation,
		logger:     logger,
	}
}

// List returns every package
func (s *PackageService) List(ctx context.Context) ([]models.TourPackage, error) {
	return s.packages.List(ctx)
}

// Search returns the packages matching the filter
func (s *PackageService) Search(ctx context.Context, filter models.PackageSearchFilter) ([]models.TourPackage, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, models.NewValidationError("price", "Minimum price cannot be greater than maximum price.")
	}
	return s.packages.Search(ctx, filter)
}

// Get returns a package with its booking availability
func (s *PackageService) Get(ctx context.Context, id uuid.UUID) (*models.PackageDetails, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &models.NotFoundError{Entity: "package", ID: id.String()}
	}
	return &models.PackageDetails{
		TourPackage:         *pkg,
		AvailableForBooking: s.validation.IsAvailableForBooking(pkg),
	}, nil
}

// Create validates and stores a new package
func (s *PackageService) Create(ctx context.Context, req models.PackageRequest) (*models.TourPackage, error) {
	pkg := &models.TourPackage{}
	req.Apply(pkg)

	if violations := s.validation.ValidatePackage(pkg, false); len(violations) > 0 {
		return nil, models.NewValidationError("", violations...)
	}

	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"package_id": pkg.ID,
		"name":       pkg.Name,
	}).Info("Package created")
	return pkg, nil
}

// Update validates and stores changes to a package
func (s *PackageService) Update(ctx context.Context, id uuid.UUID, req models.PackageRequest) (*models.TourPackage, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &models.NotFoundError{Entity: "package", ID: id.String()}
	}

	req.Apply(pkg)
	if violations := s.validation.ValidatePackage(pkg, true); len(violations) > 0 {
		return nil, models.NewValidationError("", violations...)
	}

	if err := s.packages.Update(ctx, pkg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Entity: "package", ID: id.String()}
		}
		return nil, err
	}

	s.logger.WithField("package_id", id).Info("Package updated")
	return pkg, nil
}

// Delete removes a package that has no confirmed bookings.
// Its pending and cancelled bookings are removed with it.
func (s *PackageService) Delete(ctx context.Context, id uuid.UUID) error {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pkg == nil {
		return &models.NotFoundError{Entity: "package", ID: id.String()}
	}

	bookings, err := s.bookings.ListByPackage(ctx, id)
	if err != nil {
		return err
	}
	if !s.validation.CanBeDeleted(bookings) {
		return models.NewValidationError("package", "Cannot delete package with confirmed bookings.")
	}

	if err := s.packages.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"package_id":       id,
		"removed_bookings": len(bookings),
	}).Info("Package deleted")
	return nil
}
