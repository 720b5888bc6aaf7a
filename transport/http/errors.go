package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MishC/NotatApp/core"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty means the error text is safe to show
}

// errorTable is the only place domain errors become HTTP statuses
var errorTable = []errorMapping{
	{core.ErrDuplicateAccount, http.StatusConflict, "duplicate_account", "This email address is already registered."},
	{core.ErrValidation, http.StatusBadRequest, "validation_failed", ""},
	{core.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password."},
	{core.ErrAccountLocked, http.StatusForbidden, "account_locked", "Account is temporarily locked. Try again later."},
	{core.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many login attempts. Try again later."},
	{core.ErrInvalidOrExpiredCode, http.StatusUnauthorized, "invalid_code", "Invalid or expired code."},
	{core.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Authentication required."},
	{core.ErrDeliveryFailure, http.StatusBadGateway, "delivery_failure", "Could not deliver verification code."},
}

const internalMessage = "A server error occurred. Please try again later."

// statusFor resolves the response for err
func statusFor(err error) (int, apiError) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.status, apiError{Code: m.code, Message: msg}
		}
	}
	return http.StatusInternalServerError, apiError{Code: "internal_error", Message: internalMessage}
}

func writeError(c *gin.Context, operation string, err error) {
	status, body := statusFor(err)
	logger := loggerFrom(c)
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"error_code", body.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "http operation failed", fields...)
	} else {
		logger.WarnContext(c.Request.Context(), "http operation failed", fields...)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
