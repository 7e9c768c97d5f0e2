package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/pkg/resilience"
)

// Client talks to an OpenAI-compatible API (embeddings + chat completions).
// Calls are rate limited; generation additionally runs behind a circuit
// breaker so a failing provider sheds load fast instead of queueing turns.
type Client struct {
	baseURL    string
	apiKey     string
	embedModel string
	chatModel  string
	dims       int
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
}

// Options configures the provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	// Dims is the deployment's embedding dimensionality. When non-zero,
	// responses of any other width are rejected.
	Dims int
	// RPS caps provider calls per second; 0 disables limiting.
	RPS float64
}

// NewClient creates a provider client.
func NewClient(opts Options) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		embedModel: opts.EmbedModel,
		chatModel:  opts.ChatModel,
		dims:       opts.Dims,
		http:       &http.Client{},
		limiter:    limiter,
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds texts in one provider call, preserving order. Empty
// input short-circuits: providers reject empty batches and the round trip
// would be wasted anyway.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp embedResponse
	err := c.post(ctx, "/v1/embeddings", embedRequest{Model: c.embedModel, Input: texts}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingProvider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", domain.ErrEmbeddingProvider, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if c.dims > 0 && len(d.Embedding) != c.dims {
			return nil, fmt.Errorf("%w: embedding %d has %d dims, want %d",
				domain.ErrEmbeddingProvider, i, len(d.Embedding), c.dims)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate runs one chat completion.
func (c *Client) Generate(ctx context.Context, req GenRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var out string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var resp chatResponse
		err := c.post(ctx, "/v1/chat/completions", chatRequest{
			Model:       c.chatModel,
			Temperature: req.Temperature,
			Messages: []chatMessage{
				{Role: "system", Content: req.System},
				{Role: "user", Content: req.User},
			},
		}, &resp)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationProvider, err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, into any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
