package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetStatsHandler(c echo.Context) error {
	type statsResponse struct {
		Nodes          int64 `json:"nodes"`
		Edges          int64 `json:"edges"`
		Chunks         int64 `json:"chunks"`
		CatalogVersion int64 `json:"catalog_version"`
	}

	app := c.(*middleware.AppContext).App
	stats, err := app.Stats(c.Request().Context())
	if err != nil {
		logger.Error("[Stats] Failed to read store sizes", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, statsResponse{
		Nodes:          stats.Nodes,
		Edges:          stats.Edges,
		Chunks:         stats.Chunks,
		CatalogVersion: app.Catalog.Version(),
	})
}
