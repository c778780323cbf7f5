package ai

import (
	"context"
	"math"
	"sync"
)

// ChatMessage represents a single message in a chat conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a message from the AI assistant
type ChatMessage struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// GraphAIClient is the model backend used for LLM extraction, answer
// phrasing and embeddings.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)

	LoadModel(ctx context.Context, opts ...GenerateOption) error
	ResetMetrics()
	GetMetrics() ModelMetrics
}

// MetricsTracker accumulates ModelMetrics across concurrent requests.
// Clients embed it to implement ResetMetrics and GetMetrics.
type MetricsTracker struct {
	mu      sync.Mutex
	metrics ModelMetrics
}

// ResetMetrics clears all accumulated token and timing metrics.
func (t *MetricsTracker) ResetMetrics() {
	t.mu.Lock()
	t.metrics = ModelMetrics{}
	t.mu.Unlock()
}

// GetMetrics returns the metrics accumulated since the last reset.
func (t *MetricsTracker) GetMetrics() ModelMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// AddMetrics adds m to the running totals.
func (t *MetricsTracker) AddMetrics(m ModelMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.InputTokens += m.InputTokens
	t.metrics.OutputTokens += m.OutputTokens
	t.metrics.TotalTokens += m.TotalTokens
	t.metrics.DurationMs += m.DurationMs

	if t.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(t.metrics.TotalTokens) * 1000.0) / float64(t.metrics.DurationMs)
		t.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}

// PadVector truncates or zero-pads v to dim entries. A dim <= 0 returns v
// unchanged.
func PadVector(v []float32, dim int) []float32 {
	if dim <= 0 || len(v) == dim {
		return v
	}
	if len(v) > dim {
		return v[:dim]
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
