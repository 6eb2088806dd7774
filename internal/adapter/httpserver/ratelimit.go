package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter builds a token bucket per client key. One limiter shared by
// several routes gives them a common budget.
func newRateLimiter(ratePerSecond float64, burst int, clientKey func(echo.Context) string) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := "60"
	if ratePerSecond > 0 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / ratePerSecond)))
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return clientKey(c), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			slog.WarnContext(c.Request().Context(), "Rate limit exceeded", "route", c.Path(), "client", identifier)
			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
				"type":  "rate_limited",
			})
		},
	})
}

// clientKey buckets signed-in shoppers by account and guests by address.
func (s *Server) clientKey(c echo.Context) string {
	if id, ok := sessionUUID(s.session(c), sessionKeyUserID); ok {
		return "user:" + id.String()
	}
	return ipKey(c)
}

func ipKey(c echo.Context) string {
	return "ip:" + c.RealIP()
}
