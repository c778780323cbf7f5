package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/extract"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRetrievalTimeout     = errors.New("retrieval timeout")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrEmptyQuestion        = errors.New("empty question")
)

// QueryEmbedder embeds a question for the semantic path. *index.Indexer
// implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Observer receives timings, e.g. for metrics.
type Observer interface {
	PathFinished(path string, elapsed time.Duration, err error)
	QueryFinished(elapsed time.Duration, answer common.Answer)
}

type Engine struct {
	router      *Router
	graph       store.GraphStore
	vectors     store.VectorStore
	embedder    QueryEmbedder
	history     store.HistoryStore
	synth       *Synthesizer
	pathTimeout time.Duration
	deadline    time.Duration
	breakers    map[common.ResultKind]*gobreaker.CircuitBreaker
	tracer      Tracer
	observer    Observer
	otelTracer  trace.Tracer
}

type NewEngineParams struct {
	Catalog  schema.Catalog
	Graph    store.GraphStore
	Vectors  store.VectorStore
	Embedder QueryEmbedder
	// History is optional; answered queries are recorded when set.
	History  store.HistoryStore
	Renderer Renderer
	// PathTimeout bounds each retrieval path. Defaults to 2s.
	PathTimeout time.Duration
	// Deadline bounds the whole query. Defaults to 5s.
	Deadline time.Duration
}

type EngineOption func(*Engine)

func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithBreakerSettings replaces the circuit breaker settings of both paths.
// Name is set per path.
func WithBreakerSettings(settings gobreaker.Settings) EngineOption {
	return func(e *Engine) {
		e.breakers = newBreakers(settings)
	}
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[Query] Circuit breaker state changed", "path", name, "from", from.String(), "to", to.String())
		},
	}
}

func newBreakers(settings gobreaker.Settings) map[common.ResultKind]*gobreaker.CircuitBreaker {
	out := make(map[common.ResultKind]*gobreaker.CircuitBreaker, 2)
	for _, kind := range []common.ResultKind{common.ResultSemantic, common.ResultGraph} {
		s := settings
		s.Name = string(kind)
		out[kind] = gobreaker.NewCircuitBreaker(s)
	}
	return out
}

func NewEngine(params NewEngineParams, opts ...EngineOption) *Engine {
	pathTimeout := params.PathTimeout
	if pathTimeout <= 0 {
		pathTimeout = 2 * time.Second
	}
	deadline := params.Deadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	e := &Engine{
		router:      NewRouter(params.Catalog),
		graph:       params.Graph,
		vectors:     params.Vectors,
		embedder:    params.Embedder,
		history:     params.History,
		synth:       NewSynthesizer(params.Renderer),
		pathTimeout: pathTimeout,
		deadline:    deadline,
		breakers:    newBreakers(defaultBreakerSettings()),
		otelTracer:  otel.Tracer("github.com/OFFIS-RIT/hazgraph/pkg/query"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query answers req. Failing or slow paths degrade the answer instead of
// failing it; the only error is an empty question.
func (e *Engine) Query(ctx context.Context, req common.QueryRequest) (common.Answer, error) {
	return e.query(ctx, req, e.tracer)
}

// QueryWithTrace is Query plus a snapshot of what was consulted.
func (e *Engine) QueryWithTrace(ctx context.Context, req common.QueryRequest) (common.Answer, QueryTraceSnapshot, error) {
	qt := NewQueryTrace()
	answer, err := e.query(ctx, req, MultiTracer{e.tracer, qt})
	return answer, qt.Snapshot(), err
}

func (e *Engine) query(ctx context.Context, req common.QueryRequest, tracer Tracer) (common.Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return common.Answer{}, ErrEmptyQuestion
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}
	start := time.Now()

	d := e.router.Route(req)
	ctx, span := e.otelTracer.Start(ctx, "query",
		trace.WithAttributes(
			attribute.Bool("semantic", d.Semantic),
			attribute.Bool("graph", d.Graph),
			attribute.Float64("route_confidence", d.Confidence),
		))
	defer span.End()

	keys := make([]string, len(d.Filters.Keys))
	for i, k := range d.Filters.Keys {
		keys[i] = string(k)
	}
	RecordQueriedEntityKeys(tracer, keys...)
	RecordQueriedRelationTypes(tracer, d.Filters.RelTypes...)

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	var (
		mu      sync.Mutex
		results []PathResult
	)
	var g errgroup.Group
	for _, kind := range d.Paths() {
		g.Go(func() error {
			pr := e.runPath(ctx, kind, req, d, tracer)
			mu.Lock()
			results = append(results, pr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(results, func(a, b PathResult) int { return strings.Compare(string(a.Kind), string(b.Kind)) })

	var considered []string
	for _, pr := range results {
		for _, r := range pr.Results {
			considered = append(considered, r.SourceRef.String())
		}
	}
	RecordConsideredSources(tracer, considered...)

	agg := Aggregate(results, req.MaxResults)
	used := make([]string, len(agg.Results))
	for i, r := range agg.Results {
		used[i] = r.SourceRef.String()
	}
	RecordUsedSources(tracer, used...)

	answer := e.synth.Synthesize(ctx, req, agg)

	span.SetAttributes(
		attribute.Float64("confidence", answer.Confidence),
		attribute.Bool("no_results", answer.NoResults),
		attribute.StringSlice("degraded", answer.Degraded),
	)
	logger.Debug("[Query] Answered",
		"id", answer.ID,
		"route", d.Reason,
		"results", len(agg.Results),
		"confidence", answer.Confidence,
		"degraded", answer.Degraded,
		"duration", time.Since(start),
	)

	e.saveHistory(ctx, req, answer)
	if e.observer != nil {
		e.observer.QueryFinished(time.Since(start), answer)
	}
	return answer, nil
}

func (e *Engine) saveHistory(ctx context.Context, req common.QueryRequest, answer common.Answer) {
	if e.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.history.SaveQuery(hctx, common.QueryRecord{Request: req, Answer: answer}); err != nil {
		logger.Warn("[Query] Failed to save query history", "id", answer.ID, "err", err)
	}
}

func (e *Engine) runPath(ctx context.Context, kind common.ResultKind, req common.QueryRequest, d Decision, tracer Tracer) PathResult {
	ctx, cancel := context.WithTimeout(ctx, e.pathTimeout)
	defer cancel()
	start := time.Now()

	out, err := e.breakers[kind].Execute(func() (any, error) {
		return withContext(ctx, func(ctx context.Context) ([]common.RetrievalResult, error) {
			switch kind {
			case common.ResultSemantic:
				return e.semantic(ctx, req)
			case common.ResultGraph:
				return e.graphFacts(ctx, req, d)
			default:
				return nil, fmt.Errorf("unknown path %q", kind)
			}
		})
	})

	elapsed := time.Since(start)
	pr := PathResult{Kind: kind}
	if err != nil {
		pr.Err = classify(ctx, kind, err)
		logger.Warn("[Query] Retrieval path degraded", "path", kind, "duration", elapsed, "err", pr.Err)
	} else {
		pr.Results, _ = out.([]common.RetrievalResult)
	}

	RecordPath(tracer, string(kind), len(pr.Results), elapsed.Milliseconds(), pr.Err)
	if e.observer != nil {
		e.observer.PathFinished(string(kind), elapsed, pr.Err)
	}
	return pr
}

// withContext runs fn but returns as soon as ctx is done, so a store that
// ignores cancellation cannot hold the query past its deadline.
func withContext[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func classify(ctx context.Context, kind common.ResultKind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s path: %w", ErrRetrievalTimeout, kind, err)
	}
	// Open breakers land here too.
	return fmt.Errorf("%w: %s path: %w", ErrRetrievalUnavailable, kind, err)
}

func (e *Engine) semantic(ctx context.Context, req common.QueryRequest) ([]common.RetrievalResult, error) {
	if e.embedder == nil || e.vectors == nil {
		return nil, fmt.Errorf("semantic path not configured")
	}
	vec, err := e.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := e.vectors.Search(ctx, vec, req.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]common.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, common.RetrievalResult{
			Kind:    common.ResultSemantic,
			Payload: h.Chunk.Text,
			Score:   h.Score,
			SourceRef: common.SourceRef{
				Kind:     common.ResultSemantic,
				ID:       h.Chunk.ChunkID,
				RecordID: h.Chunk.RecordID,
			},
			EntityKeys: e.mentionedKeys(h.Chunk.Text),
		})
	}
	return out, nil
}

// mentionedKeys resolves the entities named in a passage so semantic hits
// can be matched against graph facts.
func (e *Engine) mentionedKeys(text string) []common.IdentityKey {
	var keys []common.IdentityKey
	for _, m := range extract.Mentions(text) {
		if k, err := e.router.resolver.Resolve(m); err == nil {
			keys = append(keys, k)
		}
	}
	return dedupeKeys(keys)
}

func (e *Engine) graphFacts(ctx context.Context, req common.QueryRequest, d Decision) ([]common.RetrievalResult, error) {
	if e.graph == nil {
		return nil, fmt.Errorf("graph path not configured")
	}
	f := d.Filters
	if len(f.Keys) == 0 && len(f.Terms) == 0 {
		return nil, nil
	}
	facts, err := e.graph.Query(ctx, store.GraphQuery{
		Keys:     f.Keys,
		Terms:    f.Terms,
		RelTypes: f.RelTypes,
		Limit:    req.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}

	out := make([]common.RetrievalResult, 0, len(facts))
	for _, fact := range facts {
		out = append(out, factResult(fact))
	}
	return out, nil
}

func factResult(f store.GraphFact) common.RetrievalResult {
	if f.Edge == nil {
		return common.RetrievalResult{
			Kind:    common.ResultGraph,
			Payload: describeNode(f.Source),
			Score:   clamp01(f.Source.Confidence * 0.75),
			SourceRef: common.SourceRef{
				Kind:     common.ResultGraph,
				ID:       f.Source.Key.Digest(),
				RecordID: firstRecord(f.Source.Provenance),
				Label:    string(f.Source.Key),
			},
			EntityKeys: []common.IdentityKey{f.Source.Key},
		}
	}
	matched := max(1, min(2, f.Matched))
	return common.RetrievalResult{
		Kind:    common.ResultGraph,
		Payload: label(f.Source) + " " + f.Edge.Type + " " + label(f.Target),
		Score:   clamp01(f.Edge.Confidence * (0.5 + 0.25*float64(matched))),
		SourceRef: common.SourceRef{
			Kind:     common.ResultGraph,
			ID:       f.Edge.EdgeID(),
			RecordID: firstRecord(f.Edge.Provenance),
			Label:    string(f.Edge.SourceKey) + " " + f.Edge.Type + " " + string(f.Edge.TargetKey),
		},
		EntityKeys: dedupeKeys([]common.IdentityKey{f.Source.Key, f.Target.Key}),
	}
}

// label names a node for display: its name, with the formula appended for
// substances, or else its key attribute values.
func label(n common.GraphNode) string {
	name := n.Attributes["name"].String()
	formula := n.Attributes["formula"].String()
	switch {
	case name != "" && formula != "":
		return name + " (" + formula + ")"
	case name != "":
		return name
	case formula != "":
		return formula
	}
	_, rest, _ := strings.Cut(string(n.Key), ":")
	var parts []string
	for _, kv := range strings.Split(rest, "|") {
		if _, v, ok := strings.Cut(kv, "="); ok {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return string(n.Key)
	}
	return strings.Join(parts, " ") + " " + strings.ToLower(n.Type)
}

func describeNode(n common.GraphNode) string {
	names := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		names = append(names, k)
	}
	slices.Sort(names)
	attrs := make([]string, 0, len(names))
	for _, k := range names {
		attrs = append(attrs, k+"="+n.Attributes[k].String())
	}
	return n.Type + " " + label(n) + ": " + strings.Join(attrs, ", ")
}

func firstRecord(provenance []string) string {
	if len(provenance) == 0 {
		return ""
	}
	id, _, _ := strings.Cut(provenance[0], "@")
	return id
}
