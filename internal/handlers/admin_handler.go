package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/messaging"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
)

// AdminBookings is the admin view of every booking
type AdminBookings interface {
	ListAll(ctx context.Context, limit, offset int) ([]models.BookingSummary, error)
	Get(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error)
}

// DashboardStats computes the admin dashboard figures
type DashboardStats interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
}

// AuditTrail reads the payment audit log
type AuditTrail interface {
	History(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error)
	RecentProviderErrors(ctx context.Context, hours, limit int) ([]*models.PaymentAudit, error)
}

// AdminPayments holds the payment operations reserved for admins
type AdminPayments interface {
	RefreshReceipt(ctx context.Context, actor models.Actor, paymentID uuid.UUID) (*models.Receipt, error)
	CheckProvider(ctx context.Context) error
}

// RefundFollowUps lists refunds waiting for a manual payout
type RefundFollowUps interface {
	List(ctx context.Context, limit int64) ([]messaging.RefundFollowUp, error)
}

// Reconciler runs the pending payment sweep on demand
type Reconciler interface {
	RunReconciliationNow(ctx context.Context) (services.ReconcileReport, error)
}

// AdminHandler serves the admin dashboard and operational endpoints
type AdminHandler struct {
	bookings   AdminBookings
	dashboard  DashboardStats
	audit      AuditTrail
	payments   AdminPayments
	refunds    RefundFollowUps
	reconciler Reconciler
	logger     *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler. refunds may be nil when the
// event stream is disabled.
func NewAdminHandler(
	bookings AdminBookings,
	dashboard DashboardStats,
	audit AuditTrail,
	payments AdminPayments,
	refunds RefundFollowUps,
	reconciler Reconciler,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		bookings:   bookings,
		dashboard:  dashboard,
		audit:      audit,
		payments:   payments,
		refunds:    refunds,
		reconciler: reconciler,
		logger:     logger,
	}
}

// GetDashboard returns revenue, refunds and booking counts
// GET /api/v1/admin/dashboard
func (h *AdminHandler) GetDashboard(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListBookings pages through every booking, newest first
// GET /api/v1/admin/bookings?limit=&offset=
func (h *AdminHandler) ListBookings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookings.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetBookingDetails returns a booking together with its payment audit trail
// GET /api/v1/admin/bookings/:id
func (h *AdminHandler) GetBookingDetails(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	history, err := h.audit.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking, "payment_history": history})
}

// GetProviderErrors lists recent payment provider failures
// GET /api/v1/admin/payments/provider-errors?hours=24
func (h *AdminHandler) GetProviderErrors(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}

	audits, err := h.audit.RecentProviderErrors(c.Request.Context(), hours, 100)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": audits, "count": len(audits), "hours": hours})
}

// RefreshReceipt looks the receipt link up again with the provider
// POST /api/v1/admin/payments/:id/receipt/refresh
func (h *AdminHandler) RefreshReceipt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.payments.RefreshReceipt(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// CheckProvider verifies the payment provider credentials
// GET /api/v1/admin/payments/provider-status
func (h *AdminHandler) CheckProvider(c *gin.Context) {
	if err := h.payments.CheckProvider(c.Request.Context()); err != nil {
		h.logger.WithError(err).Warn("Payment provider check failed")
		c.JSON(http.StatusBadGateway, gin.H{"status": "unreachable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRefundFollowUps lists refunds that still need a manual payout
// GET /api/v1/admin/refunds/pending
func (h *AdminHandler) ListRefundFollowUps(c *gin.Context) {
	if h.refunds == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "unavailable",
			"message": "Refund follow-ups require the event stream to be enabled",
		})
		return
	}

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}

	followUps, err := h.refunds.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": followUps, "count": len(followUps)})
}

// RunReconciliation runs the pending payment sweep immediately
// POST /api/v1/admin/payments/reconcile
func (h *AdminHandler) RunReconciliation(c *gin.Context) {
	report, err := h.reconciler.RunReconciliationNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
