package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/messaging"
)

// CorrelationIDHeader carries the request correlation id in and out
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID reuses the caller's correlation id or generates one and stores
// it on the request context so events published by the request carry it
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = messaging.NewCorrelationID()
		}

		c.Request = c.Request.WithContext(messaging.ContextWithCorrelationID(c.Request.Context(), id))
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it completes
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           path,
			"query":          query,
			"ip":             c.ClientIP(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"user_agent":     c.Request.UserAgent(),
			"correlation_id": messaging.CorrelationIDFromContext(c.Request.Context()),
		}

		if actor, ok := GetActor(c); ok {
			fields["user_id"] = actor.UserID
			fields["roles"] = actor.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}
