package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/service"
)

const (
	claimsKey = "claims"
	loggerKey = "logger"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			writeError(c, "authenticate", core.ErrUnauthenticated)
			return
		}

		claims, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, "authenticate", err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}

func claimsFrom(c *gin.Context) (core.AccessClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return core.AccessClaims{}, false
	}
	claims, ok := v.(core.AccessClaims)
	return claims, ok
}

// RequestLogger logs one line per request through slog
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(loggerKey, logger)
		c.Next()

		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Recovery turns panics into a generic 500 response
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered", "path", c.FullPath(), "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": apiError{Code: "internal_error", Message: internalMessage},
		})
	})
}

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if logger, ok := v.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
