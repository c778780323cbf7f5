package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/queue"
	"github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type upload struct {
	Name   string
	Format string
	Data   []byte
}

// readUpload accepts either a multipart form with a "file" field or a JSON
// body {name, format, content}.
func readUpload(c echo.Context) (upload, bool) {
	type uploadBody struct {
		Name    string `json:"name" validate:"required"`
		Format  string `json:"format"`
		Content string `json:"content" validate:"required"`
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err != nil {
			return upload{}, false
		}
		src, err := file.Open()
		if err != nil {
			return upload{}, false
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			return upload{}, false
		}
		return upload{Name: file.Filename, Format: c.FormValue("format"), Data: data}, true
	}

	data := new(uploadBody)
	if err := c.Bind(data); err != nil {
		return upload{}, false
	}
	if err := c.Validate(data); err != nil {
		return upload{}, false
	}
	return upload{Name: data.Name, Format: data.Format, Data: []byte(data.Content)}, true
}

// PostRecordsHandler ingests one uploaded document. With ?async=true and a
// configured queue the document is handed to a worker instead.
func PostRecordsHandler(c echo.Context) error {
	type postRecordsResponse struct {
		Message       string                    `json:"message"`
		CorrelationID string                    `json:"correlation_id,omitempty"`
		Outcomes      []common.IngestionOutcome `json:"outcomes,omitempty"`
	}

	up, ok := readUpload(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, postRecordsResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if c.QueryParam("async") == "true" && app.Queue != nil {
		correlationID, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, postRecordsResponse{
				Message: "Internal server error",
			})
		}
		msg := queue.IngestMsg{
			Name:          up.Name,
			Format:        up.Format,
			RetrievedAt:   time.Now().UTC(),
			CorrelationID: correlationID,
		}
		if app.Archive != nil {
			key, err := app.Archive.Put(ctx, up.Name, up.Data)
			if err != nil {
				logger.Error("[Records] Failed to archive upload", "name", up.Name, "err", err)
				return c.JSON(http.StatusInternalServerError, postRecordsResponse{
					Message: "Internal server error",
				})
			}
			msg.S3Key = key
		} else {
			msg.Content = up.Data
		}

		body, err := json.Marshal(msg)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, postRecordsResponse{
				Message: "Internal server error",
			})
		}
		if err := queue.PublishFIFO(ctx, app.Queue, queue.IngestQueue, body, nil); err != nil {
			logger.Error("[Records] Failed to enqueue upload", "name", up.Name, "err", err)
			return c.JSON(http.StatusServiceUnavailable, postRecordsResponse{
				Message: "Queue unavailable",
			})
		}
		return c.JSON(http.StatusAccepted, postRecordsResponse{
			Message:       "Queued",
			CorrelationID: correlationID,
		})
	}

	outcomes, err := app.Pipeline.Ingest(ctx, loader.RawInput{
		Name:       up.Name,
		Data:       up.Data,
		FormatHint: up.Format,
	})
	switch {
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return c.JSON(http.StatusUnsupportedMediaType, postRecordsResponse{
			Message: err.Error(),
		})
	case errors.Is(err, loader.ErrMalformedInput):
		return c.JSON(http.StatusUnprocessableEntity, postRecordsResponse{
			Message: err.Error(),
		})
	case err != nil:
		logger.Error("[Records] Failed to ingest upload", "name", up.Name, "err", err)
		return c.JSON(http.StatusInternalServerError, postRecordsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, postRecordsResponse{
		Message:  "Ingested",
		Outcomes: outcomes,
	})
}
