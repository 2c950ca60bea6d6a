package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// Logger logs one line per request. Isolation failures are additionally
// tagged as security events so they can be alerted on; they are never
// downgraded to ordinary request noise.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
				if errors.Is(err, scope.ErrCrossTenantViolation) {
					evt = evt.Str("security_event", "cross_tenant_violation")
				} else if errors.Is(err, scope.ErrScopeMissing) {
					evt = evt.Str("security_event", "scope_missing")
				}
			}

			if tid, ok := c.Get("jwt_tenant_id").(string); ok {
				evt = evt.Str("tenant_id", tid)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
