package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/app"
	"github.com/OFFIS-RIT/hazgraph/internal/queue"
	"github.com/OFFIS-RIT/hazgraph/internal/storage"
	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/ai"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
)

// aiMetricsIngester logs token usage of the AI client after every document.
type aiMetricsIngester struct {
	queue.Ingester
	client ai.GraphAIClient
}

func (i aiMetricsIngester) Ingest(ctx context.Context, in loader.RawInput) ([]common.IngestionOutcome, error) {
	i.client.ResetMetrics()
	outcomes, err := i.Ingester.Ingest(ctx, in)

	metrics := i.client.GetMetrics()
	aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
	logger.Info(
		"[Worker] AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", fmt.Sprintf("%02d:%02d:%02d", int(aiDuration.Hours()), int(aiDuration.Minutes())%60, int(aiDuration.Seconds())%60),
	)
	return outcomes, err
}

func main() {
	util.LoadEnv()
	app.InitLogger("hazgraph-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.ConfigFromEnv())
	if err != nil {
		logger.Fatal("[Worker] Failed to initialize", "err", err)
	}
	defer a.Close()
	a.WatchCatalog(ctx)

	var archive queue.Fetcher
	if util.GetEnv("AWS_BUCKET") != "" {
		s3, err := storage.NewArchive(ctx, storage.ArchiveParamsFromEnv())
		if err != nil {
			logger.Fatal("[Worker] Failed to create archive", "err", err)
		}
		archive = s3
	}

	var ingester queue.Ingester = a.Pipeline
	if a.AI != nil {
		ingester = aiMetricsIngester{Ingester: a.Pipeline, client: a.AI}
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("[Worker] Failed to declare queues", "err", err)
	}

	if err := queue.Consume(ctx, ch, queue.IngestQueue, queue.NewHandler(ingester, archive)); err != nil {
		logger.Fatal("[Worker] Consumer stopped", "err", err)
	}
	logger.Info("[Worker] Shutdown signal received, exiting...")
}
