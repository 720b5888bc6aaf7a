package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/service"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/auth"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService  *service.AuthService
	secureCookie bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, secureCookie bool) *AuthHandlers {
	return &AuthHandlers{
		authService:  authService,
		secureCookie: secureCookie,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Channel  string `json:"channel"`
}

type loginResponse struct {
	FlowID  string `json:"flowId"`
	Channel string `json:"channel"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type verifyRequest struct {
	FlowID  string `json:"flowId" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Channel string `json:"channel"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

var errInvalidBody = fmt.Errorf("%w: invalid request body", core.ErrValidation)

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "Auth service is running.")
}

// Register handles account creation
func (h *AuthHandlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "register", errInvalidBody)
		return
	}

	_, err := h.authService.Register(c.Request.Context(), service.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(c, "register", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account created successfully."})
}

// Login handles the password step and sends the second-factor code
func (h *AuthHandlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "login", errInvalidBody)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Channel:  req.Channel,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		writeError(c, "login", err)
		return
	}

	resp := loginResponse{
		FlowID:  result.FlowID,
		Channel: string(result.Channel),
		Message: "Code sent",
	}
	if result.Code != "" {
		resp.Message = "Code sent (dev)"
		resp.Code = result.Code
	}
	c.JSON(http.StatusOK, resp)
}

// Verify completes the login and installs the refresh cookie
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "verify", errInvalidBody)
		return
	}

	pair, err := h.authService.VerifyFactor(c.Request.Context(), service.VerifyRequest{
		FlowID:  req.FlowID,
		Code:    req.Code,
		Channel: req.Channel,
	})
	if err != nil {
		writeError(c, "verify", err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.SessionExpiresAt)
	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Refresh exchanges the refresh cookie for a new access token
func (h *AuthHandlers) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		writeError(c, "refresh", core.ErrUnauthenticated)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), token)
	if err != nil {
		writeError(c, "refresh", err)
		return
	}

	if pair.RefreshToken != token {
		h.setRefreshCookie(c, pair.RefreshToken, pair.SessionExpiresAt)
	}
	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Logout clears the caller's session and the refresh cookie.
// The bearer token identifies the caller; the cookie is used when it is missing or invalid.
func (h *AuthHandlers) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	var err error
	cleared := false
	if token, ok := bearerToken(c); ok {
		if claims, authErr := h.authService.Authenticate(ctx, token); authErr == nil {
			err = h.authService.Logout(ctx, claims.SubjectID)
			cleared = true
		}
	}
	if !cleared {
		if token, cookieErr := c.Cookie(refreshCookieName); cookieErr == nil && token != "" {
			err = h.authService.LogoutSession(ctx, token)
		}
	}

	h.clearRefreshCookie(c)
	if err != nil {
		writeError(c, "logout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		writeError(c, "me", core.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    claims.SubjectID,
		"email": claims.Email,
	})
}

// Authorize answers forward-auth checks; reaching it means the token is valid
func (h *AuthHandlers) Authorize(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		writeError(c, "authorize", core.ErrUnauthenticated)
		return
	}
	c.Header("X-Auth-Subject", claims.SubjectID)
	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"subject":    claims.SubjectID,
	})
}

func newTokenResponse(pair *service.TokenPair) tokenResponse {
	expiresIn := int64(time.Until(pair.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}
}

func (h *AuthHandlers) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		Secure:   h.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
