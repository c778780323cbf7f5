package server

import (
	"net/http"

	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(metrics))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Record routes
	apiRoutes.POST("/records", routes.PostRecordsHandler, middleware.RequirePermission(middleware.PermRecordsWrite))
	apiRoutes.GET("/records/:id/status", routes.GetRecordStatusHandler, middleware.RequirePermission(middleware.PermRecordsRead))

	// Query routes
	apiRoutes.POST("/query", routes.PostQueryHandler, middleware.RequirePermission(middleware.PermQuery))

	// History routes
	apiRoutes.GET("/history/ingestion", routes.GetIngestionHistoryHandler, middleware.RequirePermission(middleware.PermHistoryRead))
	apiRoutes.GET("/history/queries", routes.GetQueryHistoryHandler, middleware.RequirePermission(middleware.PermHistoryRead))
	apiRoutes.GET("/review", routes.GetReviewHandler, middleware.RequirePermission(middleware.PermReviewRead))
	apiRoutes.GET("/stats", routes.GetStatsHandler, middleware.RequirePermission(middleware.PermStatsRead))
}
