package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetRecordStatusHandler returns the last known outcome of a record.
func GetRecordStatusHandler(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid record id"})
	}

	app := c.(*middleware.AppContext).App
	outcome, err := app.Pipeline.Status(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Record not found"})
	}
	if err != nil {
		logger.Error("[Records] Failed to load status", "record_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, outcome)
}
