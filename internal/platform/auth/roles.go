package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's roles claim.
const (
	RoleSuperAdmin   = "super_admin"
	RolePractitioner = "practitioner"
	RoleAssistant    = "assistant"
	RoleBilling      = "billing"
	RolePatient      = "patient"
)

// HasRole reports whether roles grants required. super_admin grants every
// role.
func HasRole(roles []string, required string) bool {
	for _, r := range roles {
		if r == required || r == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	msg := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			granted := RolesFromContext(c.Request().Context())
			for _, r := range roles {
				if HasRole(granted, r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, msg)
		}
	}
}

// Routes served without authentication.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

func IsPublicPath(path string) bool { return publicPaths[path] }

// AuthSkipper skips authentication for public routes. It matches the route
// pattern, not the raw URL.
func AuthSkipper(c echo.Context) bool { return IsPublicPath(c.Path()) }
