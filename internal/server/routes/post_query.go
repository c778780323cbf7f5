package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/query"

	"github.com/labstack/echo/v4"
)

func PostQueryHandler(c echo.Context) error {
	type queryBody struct {
		Question       string            `json:"question" validate:"required"`
		MaxResults     int               `json:"max_results" validate:"gte=0,lte=100"`
		IncludeSources bool              `json:"include_sources"`
		Filters        map[string]string `json:"filters"`
		Trace          bool              `json:"trace"`
	}

	type queryResponse struct {
		Message string                    `json:"message,omitempty"`
		Answer  *common.Answer            `json:"answer,omitempty"`
		Trace   *query.QueryTraceSnapshot `json:"trace,omitempty"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	req := common.QueryRequest{
		Question:       data.Question,
		MaxResults:     data.MaxResults,
		IncludeSources: data.IncludeSources,
		Filters:        data.Filters,
	}
	ctx := c.Request().Context()
	engine := c.(*middleware.AppContext).App.Engine

	var (
		answer common.Answer
		trace  *query.QueryTraceSnapshot
		err    error
	)
	if data.Trace {
		var snap query.QueryTraceSnapshot
		answer, snap, err = engine.QueryWithTrace(ctx, req)
		trace = &snap
	} else {
		answer, err = engine.Query(ctx, req)
	}
	if errors.Is(err, query.ErrEmptyQuestion) {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Question must not be empty",
		})
	}
	if err != nil {
		logger.Error("[Query] Failed to answer question", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Answer: &answer,
		Trace:  trace,
	})
}
