package app

import (
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/util"
)

// Config selects backends and tunes the pipeline. ConfigFromEnv fills it
// from the environment; the zero value plus Defaults runs fully in memory.
type Config struct {
	GraphBackend  string
	VectorBackend string
	LockBackend   string
	AIAdapter     string

	DatabaseURL string
	RedisURL    string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	ChromemPath string

	AIEmbedModel      string
	AIAnswerModel     string
	AIExtractModel    string
	AIEmbedURL        string
	AIEmbedKey        string
	AIChatURL         string
	AIChatKey         string
	AIParallelReq     int
	EmbeddingDim      int
	EmbedRequestsPerS float64

	CatalogPath string

	ChunkMaxTokens  int
	ChunkOverlap    float64
	ChunkEncoder    string
	ParallelRecords int
	MaxViolations   int

	QueryPathTimeout time.Duration
	QueryDeadline    time.Duration
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.GraphBackend == "" {
		c.GraphBackend = "memory"
	}
	if c.VectorBackend == "" {
		c.VectorBackend = "memory"
	}
	if c.LockBackend == "" {
		c.LockBackend = "local"
	}
	if c.AIAdapter == "" {
		c.AIAdapter = "local"
	}
	if c.ChunkMaxTokens <= 0 {
		c.ChunkMaxTokens = 300
	}
	if c.ParallelRecords <= 0 {
		c.ParallelRecords = 4
	}
	if c.QueryPathTimeout <= 0 {
		c.QueryPathTimeout = 2 * time.Second
	}
	if c.QueryDeadline <= 0 {
		c.QueryDeadline = 5 * time.Second
	}
}

func ConfigFromEnv() Config {
	c := Config{
		GraphBackend:  util.GetEnv("GRAPH_BACKEND"),
		VectorBackend: util.GetEnv("VECTOR_BACKEND"),
		LockBackend:   util.GetEnv("LOCK_BACKEND"),
		AIAdapter:     util.GetEnv("AI_ADAPTER"),

		DatabaseURL: util.GetEnv("DATABASE_URL"),
		RedisURL:    util.GetEnv("REDIS_URL"),

		Neo4jURI:      util.GetEnv("NEO4J_URI"),
		Neo4jUser:     util.GetEnvString("NEO4J_USER", "neo4j"),
		Neo4jPassword: util.GetEnv("NEO4J_PASSWORD"),
		Neo4jDatabase: util.GetEnv("NEO4J_DATABASE"),

		ChromemPath: util.GetEnv("CHROMEM_PATH"),

		AIEmbedModel:      util.GetEnv("AI_EMBED_MODEL"),
		AIAnswerModel:     util.GetEnv("AI_CHAT_ANSWER_MODEL"),
		AIExtractModel:    util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		AIEmbedURL:        util.GetEnv("AI_EMBED_URL"),
		AIEmbedKey:        util.GetEnv("AI_EMBED_KEY"),
		AIChatURL:         util.GetEnv("AI_CHAT_URL"),
		AIChatKey:         util.GetEnv("AI_CHAT_KEY"),
		AIParallelReq:     util.GetEnvInt("AI_PARALLEL_REQ", 8),
		EmbeddingDim:      util.GetEnvInt("AI_EMBED_DIM", 0),
		EmbedRequestsPerS: util.GetEnvNumeric("AI_EMBED_RPS", 0),

		CatalogPath: util.GetEnv("CATALOG_PATH"),

		ChunkMaxTokens:  util.GetEnvInt("CHUNK_MAX_TOKENS", 300),
		ChunkOverlap:    util.GetEnvNumeric("CHUNK_OVERLAP", 0.1),
		ChunkEncoder:    util.GetEnv("CHUNK_ENCODER"),
		ParallelRecords: util.GetEnvInt("PARALLEL_RECORDS", 4),
		MaxViolations:   util.GetEnvInt("MAX_VIOLATIONS", 20),

		QueryPathTimeout: util.GetEnvMillis("QUERY_PATH_TIMEOUT_MS", 2*time.Second),
		QueryDeadline:    util.GetEnvMillis("QUERY_DEADLINE_MS", 5*time.Second),
	}
	c.Defaults()
	return c
}
