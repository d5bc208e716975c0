package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// BookingWorkflow creates, cancels and lists bookings
type BookingWorkflow interface {
	Create(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error)
	Cancel(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.CancelSummary, error)
	Get(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.BookingSummary, error)
	Confirmation(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.BookingConfirmation, error)
}

// BookingHandler handles customer booking operations
type BookingHandler struct {
	bookings BookingWorkflow
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingWorkflow, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// CreateBooking reserves seats on a package. The booking stays pending until paid.
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Booking created. Complete the payment to confirm it.",
		"booking": booking,
	})
}

// GetMyBookings lists the caller's bookings with their payment state
// GET /api/v1/bookings
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListMine(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetBooking returns one booking of the caller
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
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
	c.JSON(http.StatusOK, booking)
}

// GetConfirmation returns the confirmation page data of a paid booking
// GET /api/v1/bookings/:id/confirmation
func (h *BookingHandler) GetConfirmation(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	confirmation, err := h.bookings.Confirmation(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, confirmation)
}

// CancelBooking cancels a booking and records the refund if it was paid
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.bookings.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Booking cancelled successfully."
	if summary.Refunded {
		message = "Booking cancelled. Refund of " + summary.RefundAmount.StringFixed(2) +
			" will be processed; a cancellation fee of " + summary.CancellationFee.StringFixed(2) + " applies."
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      message,
		"cancellation": summary,
	})
}
