package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"affiliate-service/internal/services"
)

// statusFor maps domain errors to HTTP status codes; unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrInvalidChargeAmount),
		errors.Is(err, services.ErrInvalidCommissionRate),
		errors.Is(err, services.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrUnknownAffiliateCode),
		errors.Is(err, services.ErrUnknownAffiliate),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrPayoutNotFound),
		errors.Is(err, services.ErrUnknownReferral):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateEmail),
		errors.Is(err, services.ErrDuplicateUsername),
		errors.Is(err, services.ErrDuplicateSignupAttribution),
		errors.Is(err, services.ErrPayoutAlreadyRequested),
		errors.Is(err, services.ErrInvalidPayoutTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrBelowPayoutThreshold),
		errors.Is(err, services.ErrNotReferred):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}; internal errors are logged and masked.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
