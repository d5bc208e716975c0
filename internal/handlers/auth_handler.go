package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/pkg/jwt"
)

// RefreshTokenRequest carries the refresh token to exchange
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthHandler exchanges refresh tokens for new access tokens
type AuthHandler struct {
	jwtService *jwt.Service
	logger     *logrus.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(jwtService *jwt.Service, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{jwtService: jwtService, logger: logger}
}

// RefreshToken issues a fresh token pair for a valid refresh token
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.logger.WithError(err).WithField("ip", c.ClientIP()).Warn("Refresh token rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_token",
			"message": "Invalid or expired refresh token",
			"code":    "INVALID_REFRESH_TOKEN",
		})
		return
	}

	accessToken, err := h.jwtService.GenerateAccessToken(claims.UserID, claims.Email, claims.Roles)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	refreshToken, err := h.jwtService.GenerateRefreshToken(claims.UserID, claims.Email, claims.Roles)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.jwtService.AccessTokenExpiry().Seconds()),
	})
}
