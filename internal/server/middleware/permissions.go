package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

const (
	PermRecordsWrite = "records.write"
	PermRecordsRead  = "records.read"
	PermQuery        = "query"
	PermHistoryRead  = "history.read"
	PermReviewRead   = "review.read"
	PermStatsRead    = "stats.read"
)

var allPermissions = []string{
	PermRecordsWrite,
	PermRecordsRead,
	PermQuery,
	PermHistoryRead,
	PermReviewRead,
	PermStatsRead,
}

func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.Permissions, permission)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			if !HasPermission(user, permission) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: missing permission " + permission})
			}

			return next(c)
		}
	}
}
