package routes

import (
	"net/http"
	"strconv"

	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func limitParam(c echo.Context) (int, bool) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxLimit), true
}

func GetIngestionHistoryHandler(c echo.Context) error {
	type ingestionHistoryResponse struct {
		Message  string                    `json:"message,omitempty"`
		Outcomes []common.IngestionOutcome `json:"outcomes"`
	}

	limit, ok := limitParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ingestionHistoryResponse{
			Message: "Invalid limit",
		})
	}

	history := c.(*middleware.AppContext).App.History
	outcomes, err := history.ListOutcomes(c.Request().Context(), limit)
	if err != nil {
		logger.Error("[History] Failed to list outcomes", "err", err)
		return c.JSON(http.StatusInternalServerError, ingestionHistoryResponse{
			Message: "Internal server error",
		})
	}
	if outcomes == nil {
		outcomes = []common.IngestionOutcome{}
	}

	return c.JSON(http.StatusOK, ingestionHistoryResponse{Outcomes: outcomes})
}

func GetQueryHistoryHandler(c echo.Context) error {
	type queryHistoryResponse struct {
		Message string               `json:"message,omitempty"`
		Queries []common.QueryRecord `json:"queries"`
	}

	limit, ok := limitParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, queryHistoryResponse{
			Message: "Invalid limit",
		})
	}

	history := c.(*middleware.AppContext).App.History
	queries, err := history.ListQueries(c.Request().Context(), limit)
	if err != nil {
		logger.Error("[History] Failed to list queries", "err", err)
		return c.JSON(http.StatusInternalServerError, queryHistoryResponse{
			Message: "Internal server error",
		})
	}
	if queries == nil {
		queries = []common.QueryRecord{}
	}

	return c.JSON(http.StatusOK, queryHistoryResponse{Queries: queries})
}

// GetReviewHandler lists entities parked for manual identity resolution.
func GetReviewHandler(c echo.Context) error {
	type reviewResponse struct {
		Message string              `json:"message,omitempty"`
		Items   []common.ReviewItem `json:"items"`
	}

	limit, ok := limitParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, reviewResponse{
			Message: "Invalid limit",
		})
	}

	history := c.(*middleware.AppContext).App.History
	items, err := history.ListReview(c.Request().Context(), limit)
	if err != nil {
		logger.Error("[Review] Failed to list review queue", "err", err)
		return c.JSON(http.StatusInternalServerError, reviewResponse{
			Message: "Internal server error",
		})
	}
	if items == nil {
		items = []common.ReviewItem{}
	}

	return c.JSON(http.StatusOK, reviewResponse{Items: items})
}
