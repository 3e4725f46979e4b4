package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
)

// RequireCapability rejects requests whose actor role fails allowed. It is a
// coarse gate; services still check responsibility-dependent rules.
func RequireCapability(name string, allowed func(role string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if !allowed(actor.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "role cannot "+name)
			}
			return next(c)
		}
	}
}

// RequireStaff admits any actor whose role normalizes to a known role.
func RequireStaff() echo.MiddlewareFunc {
	return RequireCapability("access staff endpoints", access.IsValidRole)
}

func RequireAdmin() echo.MiddlewareFunc {
	return RequireCapability("perform admin actions", access.IsAdmin)
}
