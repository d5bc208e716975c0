package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// PackageCatalog is the package inventory as seen by the HTTP layer
type PackageCatalog interface {
	List(ctx context.Context) ([]models.TourPackage, error)
	Search(ctx context.Context, filter models.PackageSearchFilter) ([]models.TourPackage, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PackageDetails, error)
	Create(ctx context.Context, req models.PackageRequest) (*models.TourPackage, error)
	Update(ctx context.Context, id uuid.UUID, req models.PackageRequest) (*models.TourPackage, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PackageHandler serves the package catalogue
type PackageHandler struct {
	packages PackageCatalog
	logger   *logrus.Logger
}

// NewPackageHandler creates a new PackageHandler
func NewPackageHandler(packages PackageCatalog, logger *logrus.Logger) *PackageHandler {
	return &PackageHandler{packages: packages, logger: logger}
}

// ListPackages returns every package, or the ones matching the query filters
// GET /api/v1/packages?location=&min_price=&max_price=&start_date=YYYY-MM-DD
func (h *PackageHandler) ListPackages(c *gin.Context) {
	filter, ok := parseSearchFilter(c)
	if !ok {
		return
	}

	var (
		packages []models.TourPackage
		err      error
	)
	if filter == (models.PackageSearchFilter{}) {
		packages, err = h.packages.List(c.Request.Context())
	} else {
		packages, err = h.packages.Search(c.Request.Context(), filter)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"packages": packages,
		"count":    len(packages),
	})
}

// GetPackage returns one package with its availability flag
// GET /api/v1/packages/:id
func (h *PackageHandler) GetPackage(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	details, err := h.packages.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// CreatePackage adds a package to the catalogue (admin)
// POST /api/v1/admin/packages
func (h *PackageHandler) CreatePackage(c *gin.Context) {
	var req models.PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pkg, err := h.packages.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

// UpdatePackage replaces the editable fields of a package (admin)
// PUT /api/v1/admin/packages/:id
func (h *PackageHandler) UpdatePackage(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pkg, err := h.packages.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

// DeletePackage removes a package that holds no confirmed bookings (admin)
// DELETE /api/v1/admin/packages/:id
func (h *PackageHandler) DeletePackage(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.packages.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Package deleted successfully"})
}

func parseSearchFilter(c *gin.Context) (models.PackageSearchFilter, bool) {
	filter := models.PackageSearchFilter{Location: strings.TrimSpace(c.Query("location"))}

	if v := c.Query("min_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			badRequest(c, "Invalid min_price", err)
			return filter, false
		}
		filter.MinPrice = &price
	}

	if v := c.Query("max_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			badRequest(c, "Invalid max_price", err)
			return filter, false
		}
		filter.MaxPrice = &price
	}

	if v := c.Query("start_date"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			badRequest(c, "Invalid start_date, expected YYYY-MM-DD", err)
			return filter, false
		}
		filter.StartDate = &date
	}

	return filter, true
}
