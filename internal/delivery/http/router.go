package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	custommiddleware "copytrade/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Auth             *custommiddleware.JWTAuth
	AuthHandler      *AuthHandler
	BrokerHandler    *BrokerHandler
	FollowerHandler  *FollowerHandler
	CopyTradeHandler *CopyTradeHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":    "healthy",
			"service":   "copytrade-api",
			"timestamp": time.Now().UTC(),
		})
	})

	api := e.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	{
		auth.POST("/login", config.AuthHandler.Login)
		auth.POST("/logout", config.AuthHandler.Logout)
		auth.GET("/me", config.AuthHandler.Me, config.Auth.Middleware)
	}

	protected := api.Group("", config.Auth.Middleware)
	{
		protected.POST("/monitor/tick", config.CopyTradeHandler.Tick)
		protected.POST("/copy-trade", config.CopyTradeHandler.CopyTrade)
		protected.GET("/copy-trades", config.CopyTradeHandler.List)

		protected.POST("/masters", config.BrokerHandler.Link)
		protected.GET("/brokers", config.BrokerHandler.List)
		protected.POST("/brokers/:id/deactivate", config.BrokerHandler.Deactivate)

		protected.POST("/followers", config.FollowerHandler.Create)
		protected.GET("/followers", config.FollowerHandler.List)
		protected.GET("/followers/:id", config.FollowerHandler.Get)
		protected.PUT("/followers/:id/settings", config.FollowerHandler.UpdateSettings)
		protected.GET("/followers/:id/stats", config.FollowerHandler.Stats)
	}

	admin := api.Group("/admin", config.Auth.Middleware, custommiddleware.AdminMiddleware)
	{
		admin.GET("/brokers", config.BrokerHandler.ListActive)
		admin.GET("/loops", config.BrokerHandler.Loops)
	}
}
