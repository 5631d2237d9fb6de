package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/models"
)

// Capabilities is the declarative route-capability table: each entry
// enumerates the exact roles it accepts. There is no computed hierarchy —
// superadmin appears wherever admin does because the call sites say so.
var Capabilities = map[string][]string{
	"authenticated": {models.RoleUser, models.RoleAdmin, models.RoleSuperadmin},
	"catalog:write": {models.RoleAdmin, models.RoleSuperadmin},
	"users:read":    {models.RoleAdmin, models.RoleSuperadmin},
	"roles:write":   {models.RoleSuperadmin},
}

// Require resolves the caller and checks its role against the capability's
// allowed set. One generic gate for every protected route.
func (m *Middleware) Require(capability string) echo.MiddlewareFunc {
	allowed, ok := Capabilities[capability]
	if !ok {
		// Unknown capability is a programming error; deny everything.
		allowed = nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.Authenticate(func(c echo.Context) error {
			user := CurrentUser(c)
			for _, role := range allowed {
				if user.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "you do not have the right to perform this action")
		})
	}
}
