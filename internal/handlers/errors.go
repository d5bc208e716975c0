package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
)

// respondError translates a domain error into its HTTP status and JSON body
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validationErr *models.ValidationError
		notFoundErr   *models.NotFoundError
		capacityErr   *models.CapacityError
		authErr       *models.AuthorizationError
		providerErr   *models.ProviderError
		conflictErr   *models.ConcurrencyConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		body := gin.H{"error": "validation_error", "message": validationErr.Error()}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
			body["details"] = validationErr.Messages
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": notFoundErr.Error()})
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient_capacity",
			"message":   capacityErr.Error(),
			"available": capacityErr.Available,
		})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": authErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": conflictErr.Error()})
	case errors.As(err, &providerErr):
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Payment provider request failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payment_provider_error",
			"message": "The payment provider could not process the request. Please try again.",
		})
	case errors.Is(err, models.ErrPaymentPending):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_pending", "message": "Payment has not been completed yet."})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "An unexpected error occurred"})
	}
}

// requireActor returns the authenticated actor or writes a 401
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication required"})
		return models.Actor{}, false
	}
	return actor, true
}

// uuidParam parses a path parameter or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": "validation_error", "message": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
