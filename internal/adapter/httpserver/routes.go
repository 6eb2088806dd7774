package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const paymentCallbackPath = "/api/payments/callback"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled: true,
		ContentSecurityPolicy: "default-src 'self'; " +
			"img-src 'self' data:; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
	s.echo.GET("/media/:id", s.handleServeMedia)

	limiter := newRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst, s.clientKey)
	api := s.echo.Group("/api", s.setupCSRFMiddleware())

	s.registerStorefrontRoutes(api, limiter)
	s.registerAccountRoutes(api)
	s.registerAdminRoutes(api)
}

func (s *Server) registerStorefrontRoutes(api *echo.Group, limiter echo.MiddlewareFunc) {
	api.GET("/csrf", s.handleCSRFToken)

	api.GET("/categories", s.handleListCategories)
	api.GET("/products", s.handleListProducts)
	api.GET("/products/:slug", s.handleGetProduct)
	api.GET("/products/:slug/reviews", s.handleProductReviews)

	api.GET("/cart", s.handleGetCart)
	api.POST("/cart/items", s.handleAddCartItem)
	api.PUT("/cart/items/:productID", s.handleSetCartItem)
	api.DELETE("/cart/items/:productID", s.handleRemoveCartItem)
	api.DELETE("/cart", s.handleClearCart)

	api.POST("/checkout/quote", s.handleQuote)
	api.POST("/checkout", s.handleCheckout, limiter)
	api.GET("/orders/track", s.handleTrackOrder, limiter)
	api.POST("/payments/callback", s.handlePaymentCallback, limiter)

	auth := api.Group("/auth", limiter)
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.POST("/logout", s.handleLogout)
}

func (s *Server) registerAccountRoutes(api *echo.Group) {
	api.POST("/products/:slug/reviews", s.handleSubmitReview, s.requireAuth)

	account := api.Group("/account", s.requireAuth)
	account.GET("", s.handleGetAccount)
	account.PUT("", s.handleUpdateAccount)
	account.PUT("/password", s.handleChangePassword)
	account.GET("/orders", s.handleAccountOrders)
	account.GET("/orders/:number", s.handleAccountOrder)
	account.POST("/orders/:number/cancel", s.handleCancelAccountOrder)
}

func (s *Server) registerAdminRoutes(api *echo.Group) {
	admin := api.Group("/admin", s.requireAuth, requireRole(domain.RoleStaff))

	admin.GET("/categories", s.handleListCategories)
	admin.POST("/categories", s.handleCreateCategory)
	admin.PUT("/categories/:id", s.handleUpdateCategory)
	admin.DELETE("/categories/:id", s.handleDeleteCategory)

	admin.GET("/products", s.handleAdminListProducts)
	admin.GET("/products/:id", s.handleAdminGetProduct)
	admin.POST("/products", s.handleCreateProduct)
	admin.PUT("/products/:id", s.handleUpdateProduct)
	admin.DELETE("/products/:id", s.handleDeleteProduct)
	admin.POST("/products/:id/stock", s.handleAdjustStock)

	admin.GET("/orders", s.handleAdminListOrders)
	if s.liveOrders != nil {
		admin.GET("/orders/live", echo.WrapHandler(s.liveOrders))
	}
	admin.GET("/orders/:number", s.handleAdminGetOrder)
	admin.PUT("/orders/:number/status", s.handleUpdateOrderStatus)
	admin.PUT("/orders/:number/payment", s.handleUpdateOrderPayment)

	admin.GET("/coupons", s.handleListCoupons)
	admin.GET("/coupons/:id", s.handleGetCoupon)
	admin.POST("/coupons", s.handleCreateCoupon)
	admin.PUT("/coupons/:id", s.handleUpdateCoupon)
	admin.DELETE("/coupons/:id", s.handleDeleteCoupon)

	admin.GET("/media", s.handleListMedia)
	admin.POST("/media", s.handleUploadMedia)
	admin.DELETE("/media/:id", s.handleDeleteMedia)

	admin.GET("/reviews", s.handleAdminListReviews)
	admin.PUT("/reviews/:id", s.handleModerateReview)
	admin.DELETE("/reviews/:id", s.handleDeleteReview)

	admin.GET("/dashboard", s.handleDashboard)

	users := admin.Group("/users", requireRole(domain.RoleAdmin))
	users.GET("", s.handleListUsers)
	users.PUT("/:id/role", s.handleSetUserRole)
	users.PUT("/:id/active", s.handleSetUserActive)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// setupCSRFMiddleware guards unsafe methods under /api. The payment
// callback comes from the gateway and carries no token.
func (s *Server) setupCSRFMiddleware() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == paymentCallbackPath
		},
		TokenLookup:    "header:X-CSRF-Token,form:csrf_token",
		CookieName:     "csrf_token",
		CookiePath:     "/",
		CookieMaxAge:   int(s.config.SessionMaxAge.Seconds()),
		CookieHTTPOnly: true,
		CookieSecure:   s.config.IsProduction(),
		CookieSameSite: http.SameSiteStrictMode,
	})
}
