package query

import (
	"cmp"
	"slices"
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredSources    TraceEventKind = "considered_sources"
	TraceEventUsedSources          TraceEventKind = "used_sources"
	TraceEventQueriedEntityKeys    TraceEventKind = "queried_entity_keys"
	TraceEventQueriedRelationTypes TraceEventKind = "queried_relation_types"
	TraceEventPathFinished         TraceEventKind = "path_finished"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	Sources       []string
	EntityKeys    []string
	RelationTypes []string

	Path       string
	Results    int
	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordConsideredSources(t Tracer, refs ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredSources, Sources: refs})
}

func RecordUsedSources(t Tracer, refs ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventUsedSources, Sources: refs})
}

func RecordQueriedEntityKeys(t Tracer, keys ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedEntityKeys, EntityKeys: keys})
}

func RecordQueriedRelationTypes(t Tracer, types ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedRelationTypes, RelationTypes: types})
}

// RecordPath reports how one retrieval path ended. A nil err means success.
func RecordPath(t Tracer, path string, results int, durationMs int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventPathFinished, Path: path, Results: results, DurationMs: durationMs}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// PathOutcome is the trace summary of one retrieval path.
type PathOutcome struct {
	Path       string
	Results    int
	DurationMs int64
	Error      string
}

// QueryTrace collects what was considered and used while answering one
// question.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	consideredSources map[string]struct{}
	usedSources       map[string]struct{}
	entityKeys        map[string]struct{}
	relationTypes     map[string]struct{}
	paths             []PathOutcome
}

type QueryTraceSnapshot struct {
	ConsideredSources []string
	UsedSources       []string
	EntityKeys        []string
	RelationTypes     []string
	Paths             []PathOutcome
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		consideredSources: make(map[string]struct{}),
		usedSources:       make(map[string]struct{}),
		entityKeys:        make(map[string]struct{}),
		relationTypes:     make(map[string]struct{}),
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventConsideredSources:
		addAll(t.consideredSources, event.Sources)
	case TraceEventUsedSources:
		addAll(t.usedSources, event.Sources)
	case TraceEventQueriedEntityKeys:
		addAll(t.entityKeys, event.EntityKeys)
	case TraceEventQueriedRelationTypes:
		addAll(t.relationTypes, event.RelationTypes)
	case TraceEventPathFinished:
		t.paths = append(t.paths, PathOutcome{
			Path:       event.Path,
			Results:    event.Results,
			DurationMs: event.DurationMs,
			Error:      event.Error,
		})
	default:
		return
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	paths := slices.Clone(t.paths)
	slices.SortFunc(paths, func(a, b PathOutcome) int { return cmp.Compare(a.Path, b.Path) })

	return QueryTraceSnapshot{
		ConsideredSources: sortedKeys(t.consideredSources),
		UsedSources:       sortedKeys(t.usedSources),
		EntityKeys:        sortedKeys(t.entityKeys),
		RelationTypes:     sortedKeys(t.relationTypes),
		Paths:             paths,
	}
}
