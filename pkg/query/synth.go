package query

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Renderer phrases an answer from retrieved results. answer already carries
// confidence, sources and degradation markers; results are in source order.
type Renderer interface {
	Render(ctx context.Context, question string, answer common.Answer, results []common.RetrievalResult) (string, error)
}

// TemplateRenderer lists the retrieved facts and passages as they are.
type TemplateRenderer struct{}

func (TemplateRenderer) Render(_ context.Context, _ string, answer common.Answer, results []common.RetrievalResult) (string, error) {
	cite := len(answer.Sources) > 0
	var facts, passages []string
	for i, r := range results {
		line := "- " + r.Payload
		if cite {
			line = "[" + strconv.Itoa(i+1) + "] " + r.Payload
		}
		if r.Kind == common.ResultGraph {
			facts = append(facts, line)
		} else {
			passages = append(passages, line)
		}
	}

	var sb strings.Builder
	if len(facts) > 0 {
		sb.WriteString("Facts:\n")
		sb.WriteString(strings.Join(facts, "\n"))
	}
	if len(passages) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Passages:\n")
		sb.WriteString(strings.Join(passages, "\n"))
	}
	if len(answer.Degraded) > 0 {
		fmt.Fprintf(&sb, "\n\nNote: the %s retrieval was unavailable, the answer may be incomplete.",
			strings.Join(answer.Degraded, " and "))
	}
	return sb.String(), nil
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// LLMRenderer asks a model to phrase the answer. The reply must cite only
// the numbered results it was given.
type LLMRenderer struct {
	client ai.GraphAIClient
}

func NewLLMRenderer(client ai.GraphAIClient) *LLMRenderer {
	return &LLMRenderer{client: client}
}

func (l *LLMRenderer) Render(ctx context.Context, question string, answer common.Answer, results []common.RetrievalResult) (string, error) {
	var data strings.Builder
	for i, r := range results {
		fmt.Fprintf(&data, "[%d] (%s) %s\n", i+1, r.Kind, r.Payload)
	}
	prompt := fmt.Sprintf(ai.AnswerPrompt, data.String(), question)

	text, err := l.client.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("generate answer: empty completion")
	}

	matches := citationRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("generate answer: no citations")
	}
	for _, m := range matches {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > len(results) {
			return "", fmt.Errorf("generate answer: citation [%d] out of range", n)
		}
	}
	if len(answer.Sources) == 0 {
		text = strings.TrimSpace(citationRe.ReplaceAllString(text, ""))
	}
	return text, nil
}

// Synthesizer turns an aggregation into an Answer. It never invents
// content: when nothing was retrieved the renderer is not called.
type Synthesizer struct {
	renderer Renderer
	now      func() time.Time
}

func NewSynthesizer(renderer Renderer) *Synthesizer {
	if renderer == nil {
		renderer = TemplateRenderer{}
	}
	return &Synthesizer{renderer: renderer, now: time.Now}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req common.QueryRequest, agg Aggregation) common.Answer {
	id, err := gonanoid.New()
	if err != nil {
		id = common.Hash(req.Question, s.now().String())[:21]
	}
	answer := common.Answer{
		ID:        id,
		Sources:   []common.SourceRef{},
		Degraded:  agg.Degraded,
		Timestamp: s.now().UTC(),
	}

	// Without results there is nothing to phrase; NoResults says so and the
	// caller decides how to present it.
	if agg.NoResults || len(agg.Results) == 0 {
		answer.NoResults = true
		return answer
	}

	answer.Confidence = agg.Confidence
	if req.IncludeSources {
		for _, r := range agg.Results {
			answer.Sources = append(answer.Sources, r.SourceRef)
		}
	}

	text, err := s.renderer.Render(ctx, req.Question, answer, agg.Results)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logger.Warn("[Query] Renderer failed, using template", "err", err)
		}
		text, _ = TemplateRenderer{}.Render(ctx, req.Question, answer, agg.Results)
	}
	answer.Text = text
	return answer
}
