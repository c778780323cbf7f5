package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

const defaultMaxChars = 12000

type llmAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type llmEntity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes []llmAttribute `json:"attributes"`
	Confidence float64        `json:"confidence"`
}

type llmRelationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type llmResponse struct {
	Entities      []llmEntity       `json:"entities"`
	Relationships []llmRelationship `json:"relationships"`
}

// LLMExtractor asks a language model for schema-constrained JSON. The
// prompt lists the types of the active catalog.
type LLMExtractor struct {
	client   ai.GraphAIClient
	catalog  schema.Catalog
	maxChars int
	opts     []ai.GenerateOption
}

type LLMExtractorParams struct {
	Client  ai.GraphAIClient
	Catalog schema.Catalog
	// MaxChars truncates long record text before prompting.
	MaxChars int
	Options  []ai.GenerateOption
}

func NewLLMExtractor(params LLMExtractorParams) *LLMExtractor {
	maxChars := params.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &LLMExtractor{
		client:   params.Client,
		catalog:  params.Catalog,
		maxChars: maxChars,
		opts:     params.Options,
	}
}

func (x *LLMExtractor) Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error) {
	text := truncate(rec.Text, x.maxChars)
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}

	def := schema.Snapshot(x.catalog).Definition()
	prompt := fmt.Sprintf(ai.ExtractPrompt, describeEntities(def), describeRelations(def), rec.SourceName, text)

	var out llmResponse
	if err := x.client.GenerateCompletionWithFormat(
		ctx,
		"safety_extraction",
		"Chemical safety entities and relationships",
		prompt,
		&out,
		x.opts...,
	); err != nil {
		return Result{}, fmt.Errorf("llm extraction: %w", err)
	}
	return Clamp(convert(rec.ID, out)), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// isKeyRef reports whether a relationship endpoint that is not an entity
// id of the response names a node by identity key.
func isKeyRef(s string) bool {
	typ, rest, ok := strings.Cut(s, ":")
	return ok && typ != "" && strings.Contains(rest, "=")
}

func convert(recordID string, in llmResponse) Result {
	var res Result
	ids := make(map[string]struct{}, len(in.Entities))
	for _, e := range in.Entities {
		ids[e.ID] = struct{}{}
	}
	for _, e := range in.Entities {
		attrs := make(map[string]common.Value, len(e.Attributes))
		for _, a := range e.Attributes {
			name := strings.ToLower(strings.TrimSpace(a.Name))
			if name == "" || strings.TrimSpace(a.Value) == "" {
				continue
			}
			v := common.ParseValue(a.Value)
			if name == "formula" || name == "cas" || name == "code" {
				v = common.StringValue(strings.TrimSpace(a.Value))
			}
			attrs[name] = v
		}
		res.Entities = append(res.Entities, common.CandidateEntity{
			LocalID:    e.ID,
			Type:       strings.TrimSpace(e.Type),
			Attributes: attrs,
			Confidence: e.Confidence,
			Provenance: recordID + "@llm",
		})
	}
	for _, r := range in.Relationships {
		rel := common.CandidateRelationship{
			SourceLocalID: r.Source,
			TargetLocalID: r.Target,
			Type:          strings.ToUpper(strings.TrimSpace(r.Type)),
			Confidence:    r.Confidence,
			Provenance:    recordID + "@llm",
		}
		if _, ok := ids[r.Source]; !ok && isKeyRef(r.Source) {
			rel.SourceLocalID, rel.SourceKey = "", common.IdentityKey(strings.TrimSpace(r.Source))
		}
		if _, ok := ids[r.Target]; !ok && isKeyRef(r.Target) {
			rel.TargetLocalID, rel.TargetKey = "", common.IdentityKey(strings.TrimSpace(r.Target))
		}
		res.Relationships = append(res.Relationships, rel)
	}
	return res
}

func describeEntities(def schema.Definition) string {
	var b strings.Builder
	for _, t := range def.Entities {
		fmt.Fprintf(&b, "  - %s (%s): %s\n", t.Name, t.Description, strings.Join(t.Attributes, ", "))
	}
	return b.String()
}

func describeRelations(def schema.Definition) string {
	var b strings.Builder
	for _, r := range def.Relations {
		fmt.Fprintf(&b, "  - %s: %s -> %s. %s\n", r.Name, strings.Join(r.Source, "|"), strings.Join(r.Target, "|"), r.Description)
	}
	return b.String()
}
