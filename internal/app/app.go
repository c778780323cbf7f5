// Package app builds the ingestion pipeline and query engine from a Config
// and owns the connections they share.
package app

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/internal/metrics"
	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/ai"
	"github.com/OFFIS-RIT/hazgraph/pkg/ai/local"
	oai "github.com/OFFIS-RIT/hazgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/hazgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/hazgraph/pkg/chunk"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/extract"
	"github.com/OFFIS-RIT/hazgraph/pkg/graph"
	"github.com/OFFIS-RIT/hazgraph/pkg/index"
	"github.com/OFFIS-RIT/hazgraph/pkg/ingest"
	"github.com/OFFIS-RIT/hazgraph/pkg/keylock"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/parsers"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger/console"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger/zaplog"
	"github.com/OFFIS-RIT/hazgraph/pkg/query"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
	chromemstore "github.com/OFFIS-RIT/hazgraph/pkg/store/chromem"
	"github.com/OFFIS-RIT/hazgraph/pkg/store/memory"
	neo4jstore "github.com/OFFIS-RIT/hazgraph/pkg/store/neo4j"
	pgxstore "github.com/OFFIS-RIT/hazgraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// InitLogger installs the console logger, or the zap JSON logger when
// LOG_FORMAT=json.
func InitLogger(service string) {
	debug := util.GetEnvBool("DEBUG", false)
	if util.GetEnv("LOG_FORMAT") == "json" {
		logger.Init(zaplog.NewZapLogger(zaplog.ZapLoggerParams{Debug: debug, Service: service}))
		return
	}
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: debug}))
}

type App struct {
	Config   Config
	Catalog  *schema.ReloadableCatalog
	Graph    store.GraphStore
	Vectors  store.VectorStore
	History  store.HistoryStore
	AI       ai.GraphAIClient
	Indexer  *index.Indexer
	Pipeline *ingest.Pipeline
	Engine   *query.Engine
	Metrics  *metrics.Metrics

	pool    *pgxpool.Pool
	closers []func()
}

// New connects every configured backend. Any failure here is a
// configuration error; already opened connections are closed.
func New(ctx context.Context, cfg Config) (*App, error) {
	cfg.Defaults()
	a := &App{Config: cfg, Metrics: metrics.New()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("[App] Initialized",
		"graph", cfg.GraphBackend,
		"vectors", cfg.VectorBackend,
		"lock", cfg.LockBackend,
		"ai", cfg.AIAdapter,
		"catalog_version", a.Catalog.Version(),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if err := a.initCatalog(); err != nil {
		return err
	}
	if err := a.initStores(ctx); err != nil {
		return err
	}
	locker, err := a.locker()
	if err != nil {
		return err
	}
	embedder, err := a.initAI()
	if err != nil {
		return err
	}

	a.Indexer = index.NewIndexer(index.NewIndexerParams{
		Provider:          embedder,
		Store:             a.Vectors,
		Parallel:          cfg.AIParallelReq,
		RequestsPerSecond: cfg.EmbedRequestsPerS,
	})

	chunker, err := chunk.NewChunker(chunk.Config{
		MaxTokens: cfg.ChunkMaxTokens,
		Overlap:   cfg.ChunkOverlap,
		Encoder:   cfg.ChunkEncoder,
	})
	if err != nil {
		return err
	}

	var extractor extract.Extractor = extract.NewRuleExtractor()
	var renderer query.Renderer
	if a.AI != nil {
		extractor = extract.Chain{
			extract.NewRuleExtractor(),
			extract.NewLLMExtractor(extract.LLMExtractorParams{Client: a.AI, Catalog: a.Catalog}),
		}
		renderer = query.NewLLMRenderer(a.AI)
	}

	engine := graph.NewEngine(graph.NewEngineParams{Store: a.Graph, Locker: locker}, graph.WithConflictHook(a.Metrics.UpsertConflict))
	a.Pipeline, err = ingest.NewPipeline(ingest.NewPipelineParams{
		Builder:         loader.NewBuilder(parsers.NewRegistry()),
		Chunker:         chunker,
		Extractor:       extractor,
		Catalog:         a.Catalog,
		Graph:           engine,
		Indexer:         a.Indexer,
		History:         a.History,
		ParallelRecords: cfg.ParallelRecords,
		MaxViolations:   cfg.MaxViolations,
	}, ingest.WithObserver(a.Metrics))
	if err != nil {
		return err
	}

	a.Engine = query.NewEngine(query.NewEngineParams{
		Catalog:     a.Catalog,
		Graph:       a.Graph,
		Vectors:     a.Vectors,
		Embedder:    a.Indexer,
		History:     a.History,
		Renderer:    renderer,
		PathTimeout: cfg.QueryPathTimeout,
		Deadline:    cfg.QueryDeadline,
	}, query.WithObserver(a.Metrics))
	return nil
}

func (a *App) initCatalog() error {
	a.Catalog = schema.NewReloadableCatalog(schema.DefaultCatalog())
	if a.Config.CatalogPath == "" {
		return nil
	}
	return schema.NewWatcher(a.Config.CatalogPath, a.Catalog, 0).LoadInitial()
}

// WatchCatalog reloads CATALOG_PATH on change until ctx is done. It is a
// no-op without a catalog path.
func (a *App) WatchCatalog(ctx context.Context) {
	if a.Config.CatalogPath == "" {
		return
	}
	w := schema.NewWatcher(a.Config.CatalogPath, a.Catalog, 0)
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("[Schema] Catalog watcher stopped", "err", err)
		}
	}()
}

func (a *App) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.Config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres backends")
	}
	if err := pgxstore.Migrate(a.Config.DatabaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxstore.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Config.GraphBackend {
	case "memory":
		a.Graph = memory.NewGraphStore()
	case "pgx", "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.Graph = pgxstore.NewGraphStore(pool)
	case "neo4j":
		g, err := neo4jstore.NewGraphStore(ctx, neo4jstore.GraphStoreParams{
			URI:      a.Config.Neo4jURI,
			User:     a.Config.Neo4jUser,
			Password: a.Config.Neo4jPassword,
			Database: a.Config.Neo4jDatabase,
		})
		if err != nil {
			return err
		}
		a.Graph = g
		a.closers = append(a.closers, func() { _ = g.Close(context.Background()) })
	default:
		return fmt.Errorf("unknown GRAPH_BACKEND %q", a.Config.GraphBackend)
	}

	switch a.Config.VectorBackend {
	case "memory":
		a.Vectors = memory.NewVectorStore()
	case "pgx", "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.Vectors = pgxstore.NewVectorStore(pool)
	case "chromem":
		v, err := chromemstore.NewVectorStore(chromemstore.VectorStoreParams{Path: a.Config.ChromemPath, Compress: true})
		if err != nil {
			return err
		}
		a.Vectors = v
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", a.Config.VectorBackend)
	}

	// History follows postgres whenever a database is configured.
	if a.Config.DatabaseURL != "" {
		pool, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.History = pgxstore.NewHistoryStore(pool)
	} else {
		a.History = memory.NewHistoryStore()
	}
	return nil
}

func (a *App) locker() (keylock.Locker, error) {
	switch a.Config.LockBackend {
	case "local":
		return keylock.NewLocal(), nil
	case "redis":
		opts, err := goredis.ParseURL(a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		return keylock.NewRedis(keylock.RedisParams{Client: client}), nil
	case "lease":
		if a.pool == nil {
			return nil, fmt.Errorf("LOCK_BACKEND=lease needs a postgres backend")
		}
		return keylock.NewLeaseClient(a.pool, keylock.LeaseOptions{}), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", a.Config.LockBackend)
	}
}

// initAI creates the model client and returns the embedding provider. The
// local adapter embeds offline and disables LLM extraction and phrasing.
func (a *App) initAI() (index.EmbeddingProvider, error) {
	cfg := a.Config
	switch cfg.AIAdapter {
	case "local":
		return local.NewHashEmbedder(cfg.EmbeddingDim), nil
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:        cfg.AIEmbedModel,
			AnswerModel:           cfg.AIAnswerModel,
			ExtractionModel:       cfg.AIExtractModel,
			EmbeddingDim:          cfg.EmbeddingDim,
			BaseURL:               cfg.AIChatURL,
			ApiKey:                cfg.AIChatKey,
			MaxConcurrentRequests: int64(cfg.AIParallelReq),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		a.AI = client
	case "openai":
		a.AI = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:        cfg.AIEmbedModel,
			AnswerModel:           cfg.AIAnswerModel,
			ExtractionModel:       cfg.AIExtractModel,
			EmbeddingDim:          cfg.EmbeddingDim,
			EmbeddingURL:          cfg.AIEmbedURL,
			EmbeddingKey:          cfg.AIEmbedKey,
			ChatURL:               cfg.AIChatURL,
			ChatKey:               cfg.AIChatKey,
			MaxConcurrentRequests: int64(cfg.AIParallelReq),
		})
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", cfg.AIAdapter)
	}
	return a.AI, nil
}

// Stats projects the store sizes.
func (a *App) Stats(ctx context.Context) (common.Stats, error) {
	return store.Stats(ctx, a.Graph, a.Vectors)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
