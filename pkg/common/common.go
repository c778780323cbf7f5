package common

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SourceType describes where a CanonicalRecord came from.
type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeRow      SourceType = "row"
)

// CanonicalRecord is the normalized representation of one ingested document
// or structured row. It is created once by the loader and never mutated.
//
// ID is derived from the source name, the row position and the content, so
// ingesting an unchanged document twice produces the same record ID.
type CanonicalRecord struct {
	ID          string           `json:"id"`
	SourceType  SourceType       `json:"source_type"`
	SourceName  string           `json:"source_name"`
	Format      string           `json:"format"`
	Text        string           `json:"text"`
	Fields      map[string]Value `json:"fields,omitempty"`
	RetrievedAt time.Time        `json:"retrieved_at"`
}

// Span is a half-open byte range [Start, End) into a record's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is a bounded passage of a record's text used for semantic retrieval.
// Chunks are owned by their record.
type Chunk struct {
	ID       string `json:"id"`
	RecordID string `json:"record_id"`
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	Span     Span   `json:"span"`
}

// CandidateEntity is an extracted, not yet validated entity.
type CandidateEntity struct {
	LocalID    string           `json:"local_id"`
	Type       string           `json:"type"`
	Attributes map[string]Value `json:"attributes"`
	Confidence float64          `json:"confidence"`
	Provenance string           `json:"provenance"`
}

// CandidateRelationship is an extracted, not yet validated relationship.
// An endpoint is either a candidate entity of the same record, named by
// its local id, or a node already in the graph, named by its identity key
// while the local id is left empty.
type CandidateRelationship struct {
	SourceLocalID string           `json:"source_local_id"`
	TargetLocalID string           `json:"target_local_id"`
	SourceKey     IdentityKey      `json:"source_key,omitempty"`
	TargetKey     IdentityKey      `json:"target_key,omitempty"`
	Type          string           `json:"type"`
	Attributes    map[string]Value `json:"attributes,omitempty"`
	Confidence    float64          `json:"confidence"`
	Provenance    string           `json:"provenance"`
}

// SubjectID identifies the relationship inside its record's verdict set.
func (r CandidateRelationship) SubjectID() string {
	return r.Source() + "-[" + r.Type + "]->" + r.Target()
}

// Source is the local id of the source, or its identity key when the
// source is an existing node.
func (r CandidateRelationship) Source() string {
	if r.SourceLocalID == "" {
		return string(r.SourceKey)
	}
	return r.SourceLocalID
}

// Target is the counterpart of Source.
func (r CandidateRelationship) Target() string {
	if r.TargetLocalID == "" {
		return string(r.TargetKey)
	}
	return r.TargetLocalID
}

// VerdictStatus is the outcome of validating one candidate.
type VerdictStatus string

const (
	VerdictAccepted VerdictStatus = "accepted"
	VerdictRejected VerdictStatus = "rejected"
	VerdictWarned   VerdictStatus = "warned"
)

// ValidationVerdict is produced once per candidate per validation pass.
// Re-validating creates a new verdict instead of changing an old one.
type ValidationVerdict struct {
	SubjectID      string        `json:"subject_id"`
	Status         VerdictStatus `json:"status"`
	Violations     []string      `json:"violations,omitempty"`
	CatalogVersion int64         `json:"catalog_version"`
}

// Passed reports whether the candidate may proceed to upsert.
func (v ValidationVerdict) Passed() bool {
	return v.Status == VerdictAccepted || v.Status == VerdictWarned
}

// IdentityKey is the deterministic fingerprint of a real-world entity.
// Two accepted entities with equal keys denote the same graph node.
type IdentityKey string

// Type returns the entity type prefix of the key.
func (k IdentityKey) Type() string {
	t, _, _ := strings.Cut(string(k), ":")
	return t
}

// Digest returns a short stable hash of the key, usable as a storage id.
func (k IdentityKey) Digest() string {
	return Hash(string(k))[:24]
}

// AttributeSource records which record last wrote an attribute and when,
// so later merges can apply last-writer-wins deterministically.
type AttributeSource struct {
	RecordID    string    `json:"record_id"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Newer reports whether s should overwrite other. Later RetrievedAt wins;
// equal timestamps fall back to the lexicographically greater record id.
func (s AttributeSource) Newer(other AttributeSource) bool {
	if !s.RetrievedAt.Equal(other.RetrievedAt) {
		return s.RetrievedAt.After(other.RetrievedAt)
	}
	return s.RecordID >= other.RecordID
}

// GraphNode is the persisted, identity-keyed form of an entity. Version is
// bumped by every committed write; a batch carries the version it read so
// the store can detect lost updates.
type GraphNode struct {
	Key              IdentityKey                `json:"key"`
	Type             string                     `json:"type"`
	Attributes       map[string]Value           `json:"attributes"`
	AttributeSources map[string]AttributeSource `json:"attribute_sources,omitempty"`
	Confidence       float64                    `json:"confidence"`
	Provenance       []string                   `json:"provenance"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	Version          int64                      `json:"version"`
}

// GraphEdge is the persisted form of a relationship. There is at most one
// edge per (SourceKey, TargetKey, Type).
type GraphEdge struct {
	SourceKey        IdentityKey                `json:"source_key"`
	TargetKey        IdentityKey                `json:"target_key"`
	Type             string                     `json:"type"`
	Attributes       map[string]Value           `json:"attributes,omitempty"`
	AttributeSources map[string]AttributeSource `json:"attribute_sources,omitempty"`
	Confidence       float64                    `json:"confidence"`
	Provenance       []string                   `json:"provenance"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	Version          int64                      `json:"version"`
}

// EdgeID returns the identity of the (source, target, type) triple.
func (e GraphEdge) EdgeID() string {
	return EdgeID(e.SourceKey, e.TargetKey, e.Type)
}

// EdgeID computes the identity of an edge triple.
func EdgeID(source, target IdentityKey, relType string) string {
	return Hash(string(source), relType, string(target))[:24]
}

// IndexedChunk is a chunk as stored in the vector store.
type IndexedChunk struct {
	ChunkID     string    `json:"chunk_id"`
	RecordID    string    `json:"record_id"`
	Vector      []float32 `json:"-"`
	ContentHash string    `json:"content_hash"`
	Text        string    `json:"text"`
}

// QueryRequest is an incoming natural-language question.
type QueryRequest struct {
	Question       string            `json:"question"`
	MaxResults     int               `json:"max_results"`
	IncludeSources bool              `json:"include_sources"`
	Filters        map[string]string `json:"filters,omitempty"`
}

// ResultKind names the retrieval path a result came from.
type ResultKind string

const (
	ResultSemantic ResultKind = "semantic"
	ResultGraph    ResultKind = "graph"
)

// SourceRef points at the thing a result was derived from: a chunk id for
// semantic results or an edge/node id for graph results.
type SourceRef struct {
	Kind     ResultKind `json:"kind"`
	ID       string     `json:"id"`
	RecordID string     `json:"record_id,omitempty"`
	Label    string     `json:"label,omitempty"`
}

// String returns a stable textual form used for deduplication.
func (r SourceRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// RetrievalResult wraps one hit from either retrieval path.
type RetrievalResult struct {
	Kind       ResultKind    `json:"kind"`
	Payload    string        `json:"payload"`
	Score      float64       `json:"score"`
	SourceRef  SourceRef     `json:"source_ref"`
	EntityKeys []IdentityKey `json:"entity_keys,omitempty"`
}

// Answer is the synthesized, immutable response to a query.
type Answer struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Sources    []SourceRef `json:"sources"`
	NoResults  bool        `json:"no_results"`
	Degraded   []string    `json:"degraded,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// RecordStatus tracks a record through ingestion. The gap between graph
// commit and vector indexing is observable as StatusPartiallyIndexed.
type RecordStatus string

const (
	StatusPending          RecordStatus = "pending"
	StatusExtracting       RecordStatus = "extracting"
	StatusPartiallyIndexed RecordStatus = "partially_indexed"
	StatusComplete         RecordStatus = "complete"
	StatusFailed           RecordStatus = "failed"
)

// IngestionOutcome is the per-record report surfaced to callers.
type IngestionOutcome struct {
	RecordID       string       `json:"record_id"`
	SourceName     string       `json:"source_name"`
	Status         RecordStatus `json:"status"`
	GraphCommitted bool         `json:"graph_committed"`
	Indexed        bool         `json:"indexed"`
	Accepted       int          `json:"accepted"`
	Rejected       int          `json:"rejected"`
	Warned         int          `json:"warned"`
	Unresolved     int          `json:"unresolved"`
	Chunks         int          `json:"chunks"`
	Violations     []string     `json:"violations,omitempty"`
	Degraded       bool         `json:"degraded"`
	CatalogVersion int64        `json:"catalog_version"`
	Error          string       `json:"error,omitempty"`
	FinishedAt     time.Time    `json:"finished_at"`
}

// QueryRecord pairs a request with its answer for the audit history.
type QueryRecord struct {
	Request QueryRequest `json:"request"`
	Answer  Answer       `json:"answer"`
}

// ReviewItem is an entity parked for manual identity resolution.
type ReviewItem struct {
	RecordID string          `json:"record_id"`
	Entity   CandidateEntity `json:"entity"`
	Reason   string          `json:"reason"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Stats is a read-only projection of store sizes.
type Stats struct {
	Nodes  int64 `json:"nodes"`
	Edges  int64 `json:"edges"`
	Chunks int64 `json:"chunks"`
}

// Hash returns the hex SHA-256 of the parts joined by a separator that
// cannot appear in normal text.
func Hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkID derives the deterministic id of a chunk.
func ChunkID(recordID string, sequence int, text string) string {
	return Hash(recordID, strconv.Itoa(sequence), text)
}

// RecordID derives the deterministic id of a record.
func RecordID(sourceName string, row int, text string, fields map[string]Value) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := []string{sourceName, strconv.Itoa(row), text}
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k].String())
	}
	return Hash(parts...)[:32]
}
