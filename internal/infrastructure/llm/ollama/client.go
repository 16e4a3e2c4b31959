package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/raglite/internal/infrastructure/llm"
	"github.com/kirillkom/raglite/internal/infrastructure/resilience"
)

const defaultEmbedTimeout = 120 * time.Second

// Client talks to Ollama's REST API. Generation endpoints come from the
// model table; embeddings use baseURL.
type Client struct {
	baseURL      string
	embedModel   string
	embedTimeout time.Duration
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(baseURL, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		embedModel:   embedModel,
		embedTimeout: defaultEmbedTimeout,
		// per-call deadlines come from the context
		httpClient: &http.Client{},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.client.embedTimeout)
	defer cancel()

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, e.client.baseURL+"/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classifyEmbedError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, classifyEmbedError)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Complete implements llm.Provider against /api/generate.
func (c *Client) Complete(ctx context.Context, endpoint llm.Endpoint, prompt string, temperature float64) (string, error) {
	url := generateURL(endpoint.URL, c.baseURL)
	request := map[string]any{
		"model":  endpoint.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, url, request, &response, "generate"); err != nil {
		return "", classifyGenerateError(err)
	}
	return strings.TrimSpace(response.Response), nil
}

// generateURL accepts either a full generate URL or a bare server address.
func generateURL(endpointURL, fallback string) string {
	u := strings.TrimRight(strings.TrimSpace(endpointURL), "/")
	if u == "" {
		u = fallback
	}
	if strings.HasSuffix(u, "/api/generate") {
		return u
	}
	return u + "/api/generate"
}

var _ llm.Provider = (*Client)(nil)
