package middleware

import (
	"github.com/OFFIS-RIT/hazgraph/internal/app"
	"github.com/OFFIS-RIT/hazgraph/internal/queue"
	"github.com/OFFIS-RIT/hazgraph/internal/storage"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

type App struct {
	*app.App
	// Queue is nil when RabbitMQ is not configured; uploads are then
	// ingested synchronously.
	Queue queue.Publisher
	// Archive is nil when no bucket is configured.
	Archive      *storage.Archive
	Key          keyfunc.Keyfunc
	MasterAPIKey string
}

// AuthDisabled reports whether neither JWKS nor a master key is configured.
func (a *App) AuthDisabled() bool {
	return a.Key == nil && a.MasterAPIKey == ""
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(a *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, a, nil}
			return next(cc)
		}
	}
}
