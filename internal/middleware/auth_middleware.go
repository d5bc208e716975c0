package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/utils"
	"github.com/tourbook/booking-backend/pkg/jwt"
)

// ActorContextKey is the key used to store the authenticated actor in Gin context
const ActorContextKey = "actor"

// AuthMiddleware creates a middleware that validates JWT tokens and stores the caller as an Actor
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).
				Warn("Auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			entry := logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).WithError(err)
			if jwtService.IsTokenExpired(tokenString) {
				entry.Warn("Auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
			} else {
				entry.Warn("Auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(ActorContextKey, models.Actor{
			UserID:    claims.UserID,
			Email:     claims.Email,
			Roles:     claims.Roles,
			IPAddress: utils.GetRealIP(c),
			UserAgent: utils.GetUserAgent(c),
		})

		c.Next()
	}
}

// RequireRole creates a middleware that checks the actor has one of the roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, exists := GetActor(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT")
			return
		}

		for _, role := range roles {
			if actor.HasRole(role) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
		c.Abort()
	}
}

// GetActor retrieves the authenticated actor from Gin context
func GetActor(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(ActorContextKey)
	if !exists {
		return models.Actor{}, false
	}

	actor, ok := value.(models.Actor)
	if !ok {
		return models.Actor{}, false
	}

	return actor, true
}

func abortUnauthorized(c *gin.Context, errCode, message, code string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	})
	c.Abort()
}
