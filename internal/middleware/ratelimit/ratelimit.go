package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/ratelimit"
)

// ByIP throttles an action per client IP. Used on anonymous endpoints
// (login, signup) where no identity exists yet.
func ByIP(limiter *ratelimit.Limiter, action string, spec ratelimit.Spec) echo.MiddlewareFunc {
	return middleware(limiter, action, spec, func(c echo.Context) string {
		return c.RealIP()
	})
}

// BySubject throttles an action per authenticated subject, falling back to
// the client IP when no identity is on the context yet.
func BySubject(limiter *ratelimit.Limiter, action string, spec ratelimit.Spec) echo.MiddlewareFunc {
	return middleware(limiter, action, spec, func(c echo.Context) string {
		if identity, ok := auth.FromContext(c); ok {
			return identity.Subject
		}
		return c.RealIP()
	})
}

func middleware(limiter *ratelimit.Limiter, action string, spec ratelimit.Spec, keyFn func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			identifier := keyFn(c)
			if limiter.Allow(ctx, action, identifier, spec) {
				return next(c)
			}
			if retry := limiter.RetryAfter(ctx, action, identifier); retry > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
}
