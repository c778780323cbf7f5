// Package ingest runs canonical records through extraction, validation,
// identity resolution, graph upsert and vector indexing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/chunk"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/extract"
	"github.com/OFFIS-RIT/hazgraph/pkg/graph"
	"github.com/OFFIS-RIT/hazgraph/pkg/identity"
	"github.com/OFFIS-RIT/hazgraph/pkg/index"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Observer is notified about verdicts and finished records, e.g. for
// metrics.
type Observer interface {
	Verdict(kind string, status common.VerdictStatus)
	RecordFinished(outcome common.IngestionOutcome, elapsed time.Duration)
}

type Pipeline struct {
	builder       *loader.Builder
	chunker       *chunk.Chunker
	extractor     extract.Extractor
	catalog       schema.Catalog
	graph         *graph.Engine
	indexer       *index.Indexer
	history       store.HistoryStore
	review        identity.ReviewQueue
	parallel      int
	maxViolations int
	observer      Observer
	now           func() time.Time
	tracer        trace.Tracer
}

type NewPipelineParams struct {
	Builder   *loader.Builder
	Chunker   *chunk.Chunker
	Extractor extract.Extractor
	Catalog   schema.Catalog
	Graph     *graph.Engine
	Indexer   *index.Indexer
	History   store.HistoryStore
	// Review defaults to History.
	Review identity.ReviewQueue
	// ParallelRecords bounds records processed at once. Defaults to 4.
	ParallelRecords int
	// MaxViolations caps the violation messages kept per outcome. Defaults
	// to 20.
	MaxViolations int
}

type PipelineOption func(*Pipeline)

func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = o
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(params NewPipelineParams, opts ...PipelineOption) (*Pipeline, error) {
	switch {
	case params.Builder == nil:
		return nil, fmt.Errorf("ingest: builder is required")
	case params.Chunker == nil:
		return nil, fmt.Errorf("ingest: chunker is required")
	case params.Extractor == nil:
		return nil, fmt.Errorf("ingest: extractor is required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("ingest: catalog is required")
	case params.Graph == nil || params.Indexer == nil:
		return nil, fmt.Errorf("ingest: graph engine and indexer are required")
	case params.History == nil:
		return nil, fmt.Errorf("ingest: history store is required")
	}

	parallel := params.ParallelRecords
	if parallel <= 0 {
		parallel = 4
	}
	maxViolations := params.MaxViolations
	if maxViolations <= 0 {
		maxViolations = 20
	}
	review := params.Review
	if review == nil {
		review = params.History
	}
	extractor := extract.Isolated(params.Extractor)

	p := &Pipeline{
		builder:       params.Builder,
		chunker:       params.Chunker,
		extractor:     extractor,
		catalog:       params.Catalog,
		graph:         params.Graph,
		indexer:       params.Indexer,
		history:       params.History,
		review:        review,
		parallel:      parallel,
		maxViolations: maxViolations,
		now:           time.Now,
		tracer:        otel.Tracer("github.com/OFFIS-RIT/hazgraph/pkg/ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ingest parses one raw input and processes every record it yields.
// Input-level failures (loader.ErrUnsupportedFormat, loader.ErrMalformedInput)
// are returned before any record is touched.
func (p *Pipeline) Ingest(ctx context.Context, in loader.RawInput) ([]common.IngestionOutcome, error) {
	records, err := p.builder.Build(ctx, in)
	if err != nil {
		logger.Warn("[Ingest] Input skipped", "name", in.Name, "err", err)
		return nil, fmt.Errorf("build records from %s: %w", in.Name, err)
	}
	logger.Info("[Ingest] Input parsed", "name", in.Name, "records", len(records))
	return p.IngestRecords(ctx, records), nil
}

// IngestRecords processes records concurrently. Outcomes are returned in
// input order; one record failing never affects another.
func (p *Pipeline) IngestRecords(ctx context.Context, records []common.CanonicalRecord) []common.IngestionOutcome {
	outcomes := make([]common.IngestionOutcome, len(records))

	g := new(errgroup.Group)
	g.SetLimit(p.parallel)
	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = p.ProcessRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// ProcessRecord runs one record through the pipeline and persists its
// outcome after every status change.
func (p *Pipeline) ProcessRecord(ctx context.Context, rec common.CanonicalRecord) common.IngestionOutcome {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "ingest.record", trace.WithAttributes(
		attribute.String("record_id", rec.ID),
		attribute.String("source", rec.SourceName),
	))
	defer span.End()

	// One catalog version for the whole record, even across a reload.
	cat := schema.Snapshot(p.catalog)
	out := common.IngestionOutcome{
		RecordID:       rec.ID,
		SourceName:     rec.SourceName,
		CatalogVersion: cat.Version(),
	}
	p.setStatus(ctx, &out, common.StatusPending)

	finish := func() common.IngestionOutcome {
		out.FinishedAt = p.now().UTC()
		p.save(ctx, out)
		span.SetAttributes(attribute.String("status", string(out.Status)))
		if out.Status == common.StatusFailed {
			span.SetStatus(codes.Error, out.Error)
		}
		if p.observer != nil {
			p.observer.RecordFinished(out, time.Since(start))
		}
		logger.Info("[Ingest] Record finished",
			"record", rec.ID,
			"source", rec.SourceName,
			"status", out.Status,
			"accepted", out.Accepted,
			"warned", out.Warned,
			"rejected", out.Rejected,
			"unresolved", out.Unresolved,
			"chunks", out.Chunks,
			"duration", time.Since(start),
		)
		return out
	}

	p.setStatus(ctx, &out, common.StatusExtracting)
	chunks := p.chunker.Chunk(rec)
	out.Chunks = len(chunks)

	res, err := p.extractor.Extract(ctx, rec)
	if err != nil {
		// A chain keeps the results of its healthy members.
		out.Degraded = true
		if !errors.Is(err, extract.ErrExtractionDegraded) {
			logger.Warn("[Ingest] Extraction failed", "record", rec.ID, "err", err)
			res = extract.Result{}
		}
	}

	batch := p.validate(ctx, rec, res, cat, &out)

	var (
		mu        sync.Mutex
		indexDone bool
		graphErr  error
		indexErr  error
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := p.graph.Upsert(ctx, batch)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			graphErr = err
			return nil
		}
		out.GraphCommitted = true
		if !indexDone {
			p.setStatus(ctx, &out, common.StatusPartiallyIndexed)
		}
		return nil
	})
	g.Go(func() error {
		_, err := p.indexer.Index(ctx, chunks)
		mu.Lock()
		defer mu.Unlock()
		indexDone = true
		indexErr = err
		return nil
	})
	_ = g.Wait()

	switch {
	case graphErr != nil:
		out.Status = common.StatusFailed
		out.Error = graphErr.Error()
		out.Indexed = indexErr == nil
	case indexErr != nil:
		// The graph is ahead of the index until the record is re-ingested.
		out.Status = common.StatusPartiallyIndexed
		out.Error = indexErr.Error()
	default:
		out.Indexed = true
		out.Status = common.StatusComplete
	}
	return finish()
}

func (p *Pipeline) setStatus(ctx context.Context, out *common.IngestionOutcome, status common.RecordStatus) {
	out.Status = status
	p.save(ctx, *out)
}

func (p *Pipeline) save(ctx context.Context, out common.IngestionOutcome) {
	if err := p.history.SaveOutcome(context.WithoutCancel(ctx), out); err != nil {
		logger.Warn("[Ingest] Failed to save outcome", "record", out.RecordID, "status", out.Status, "err", err)
	}
}

// Status returns the latest known outcome of a record.
func (p *Pipeline) Status(ctx context.Context, recordID string) (common.IngestionOutcome, error) {
	return p.history.Outcome(ctx, recordID)
}
