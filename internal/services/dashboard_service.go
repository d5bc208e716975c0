package services

import (
	"context"

	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/models"
)

// DashboardService serves the admin dashboard figures
type DashboardService struct {
	dashboard *database.DashboardRepository
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(dashboard *database.DashboardRepository) *DashboardService {
	return &DashboardService{dashboard: dashboard}
}

// Stats returns revenue, refunds, booking and package counts
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	return s.dashboard.GetStats(ctx)
}
