package ollama

import (
	"net/http"
	"net/url"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.GraphAIClient against a locally hosted
// Ollama server.
type GraphOllamaClient struct {
	ai.MetricsTracker

	embeddingModel  string
	answerModel     string
	extractionModel string
	embeddingDim    int

	reqLock *semaphore.Weighted

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel  string
	AnswerModel     string
	ExtractionModel string
	EmbeddingDim    int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient connects to the Ollama server at BaseURL, or the
// library default when empty.
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	transport := http.DefaultTransport
	if params.ApiKey != "" {
		transport = &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		}
	}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}

	return &GraphOllamaClient{
		embeddingModel:  params.EmbeddingModel,
		answerModel:     params.AnswerModel,
		extractionModel: params.ExtractionModel,
		embeddingDim:    params.EmbeddingDim,

		reqLock: semaphore.NewWeighted(maxReq),

		Client: api.NewClient(u, &http.Client{Transport: transport}),
	}, nil
}
