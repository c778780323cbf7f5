package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/app"
	"github.com/OFFIS-RIT/hazgraph/internal/queue"
	mid "github.com/OFFIS-RIT/hazgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/hazgraph/internal/storage"
	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance serving a.
func New(a *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(a))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnvString("BODY_LIMIT", "256M")))

	RegisterRoutes(e, a.Metrics.Handler())
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, app.ConfigFromEnv())
	if err != nil {
		logger.Fatal("[Server] Failed to initialize", "err", err)
	}
	defer core.Close()
	core.WatchCatalog(ctx)

	a := &mid.App{
		App:          core,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("[Server] Failed to load jwks keys", "err", err)
		}
		a.Key = k
	}
	if a.AuthDisabled() {
		logger.Warn("[Server] Neither AUTH_URL nor MASTER_API_KEY is set, authentication is disabled")
	}

	if queue.Configured() {
		conn := queue.Init()
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("[Server] Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
			logger.Fatal("[Server] Failed to declare queues", "err", err)
		}
		a.Queue = ch
	}

	if util.GetEnv("AWS_BUCKET") != "" {
		archive, err := storage.NewArchive(ctx, storage.ArchiveParamsFromEnv())
		if err != nil {
			logger.Fatal("[Server] Failed to create archive", "err", err)
		}
		a.Archive = archive
	}

	e := New(a)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("[Server] Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Server] Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
}
