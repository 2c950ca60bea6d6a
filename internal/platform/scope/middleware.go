package scope

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const scopeKey = "request_scope"

// Middleware builds the per-request Scope from claims set by the auth
// middleware (jwt_tenant_id, jwt_actor_id) and stores it on the echo
// context. Requests without a resolvable tenant are rejected up front.
func Middleware(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantRaw, _ := c.Get("jwt_tenant_id").(string)
			actorRaw, _ := c.Get("jwt_actor_id").(string)

			tenantID, err := uuid.Parse(tenantRaw)
			if err != nil {
				logger.Warn().
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Str("security_event", "scope_missing").
					Msg("request without resolvable tenant")
				return echo.NewHTTPError(http.StatusUnauthorized, "no tenant scope")
			}

			actorID, err := uuid.Parse(actorRaw)
			if err != nil {
				actorID = uuid.Nil
			}

			c.Set(scopeKey, New(tenantID, actorID))
			return next(c)
		}
	}
}

// FromEcho extracts the request scope. Handlers call this once and pass the
// scope down explicitly; returns ErrScopeMissing if the middleware did not
// run.
func FromEcho(c echo.Context) (Scope, error) {
	s, ok := c.Get(scopeKey).(Scope)
	if !ok || !s.Valid() {
		return Scope{}, ErrScopeMissing
	}
	return s, nil
}
