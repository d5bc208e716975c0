package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
)

// PaymentWorkflow drives hosted checkout and its callbacks
type PaymentWorkflow interface {
	InitiateCheckout(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.CheckoutSession, error)
	ConfirmSuccess(ctx context.Context, actor models.Actor, sessionID string, bookingID uuid.UUID) (*models.ConfirmationResult, error)
	CancelCallback(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (bool, error)
	Receipt(ctx context.Context, actor models.Actor, paymentID uuid.UUID) (*models.Receipt, error)
}

// PaymentHandler handles checkout and receipt endpoints
type PaymentHandler struct {
	payments PaymentWorkflow
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentWorkflow, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Checkout opens a hosted checkout session for a pending booking
// POST /api/v1/bookings/:id/checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	session, err := h.payments.InitiateCheckout(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// CheckoutSuccess reconciles the success redirect of a checkout session
// GET /api/v1/payments/success?session_id=&booking_id=
func (h *PaymentHandler) CheckoutSuccess(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		badRequest(c, "session_id is required", nil)
		return
	}
	bookingID, err := uuid.Parse(c.Query("booking_id"))
	if err != nil {
		badRequest(c, "Invalid booking_id", err)
		return
	}

	result, err := h.payments.ConfirmSuccess(c.Request.Context(), actor, sessionID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Payment successful! Your booking is confirmed."
	if result.AlreadyConfirmed {
		message = "Your booking was already confirmed."
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "result": result})
}

// CheckoutCancelled handles the cancel redirect of a checkout session
// GET /api/v1/payments/cancelled?booking_id=
func (h *PaymentHandler) CheckoutCancelled(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	bookingID, err := uuid.Parse(c.Query("booking_id"))
	if err != nil {
		badRequest(c, "Invalid booking_id", err)
		return
	}

	cancelled, err := h.payments.CancelCallback(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Payment was cancelled. Your booking is still pending and can be paid later.",
		"booking_id":        bookingID,
		"payment_cancelled": cancelled,
	})
}

// GetReceipt returns the receipt link of a payment
// GET /api/v1/payments/:id/receipt
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.payments.Receipt(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
