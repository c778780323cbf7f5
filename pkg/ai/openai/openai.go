package openai

import (
	"github.com/OFFIS-RIT/hazgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient talks to any OpenAI compatible API. Chat and embedding
// endpoints may live on different hosts.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	ai.MetricsTracker

	embeddingModel  string
	answerModel     string
	extractionModel string
	embeddingDim    int

	chatURL string

	reqLock *semaphore.Weighted

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// EmbeddingDim truncates or pads vectors so they fit a fixed-width column;
// zero keeps the model's native size.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	AnswerModel     string
	ExtractionModel string
	EmbeddingDim    int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates separate OpenAI clients for embeddings and
// chat completions.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel:  "text-embedding-3-small",
//		AnswerModel:     "gpt-4o-mini",
//		ExtractionModel: "gpt-4o-mini",
//		ChatKey:         os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:    os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 8
	}
	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		answerModel:     params.AnswerModel,
		extractionModel: params.ExtractionModel,
		embeddingDim:    params.EmbeddingDim,

		chatURL: params.ChatURL,

		reqLock: semaphore.NewWeighted(maxReq),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
