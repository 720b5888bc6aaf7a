package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/MishC/NotatApp/service"
)

// RouterOptions tune the HTTP surface
type RouterOptions struct {
	Logger *slog.Logger
	// InsecureCookies drops the Secure attribute for plain-HTTP local development
	InsecureCookies bool
	// TrustedProxies may set X-Forwarded-For; nil trusts none
	TrustedProxies []string
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, opts RouterOptions) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(Recovery(logger), RequestLogger(logger))

	handlers := NewAuthHandlers(authService, !opts.InsecureCookies)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/health", handlers.Health)
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router, nil
}
