package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned when no key is configured for the hosted backend.
var ErrMissingAPIKey = errors.New("embedding API key not set")

type apiKeyCtxKey struct{}

// ContextWithAPIKey attaches a one-off hosted embedding key to ctx. Calls
// carrying a key use a fresh client built for that key instead of the
// shared one.
func ContextWithAPIKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyCtxKey{}, key)
}

func apiKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyCtxKey{}).(string)
	return key
}

// RemoteConfig configures the hosted embedding backend.
type RemoteConfig struct {
	// Model returns the model name; it is called on every request.
	Model   func() string
	BaseURL string

	// APIKey returns the shared key; it is called until a client has been built.
	APIKey func() string
}

// OpenAIEmbedder calls the OpenAI embeddings API, one request per batch.
type OpenAIEmbedder struct {
	cfg RemoteConfig
	dim int

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIEmbedder returns a hosted embedder. The shared client is built on first use.
func NewOpenAIEmbedder(cfg RemoteConfig) *OpenAIEmbedder {
	dim := 1536
	if cfg.Model != nil && cfg.Model() == "text-embedding-3-large" {
		dim = 3072
	}
	return &OpenAIEmbedder{cfg: cfg, dim: dim}
}

func (e *OpenAIEmbedder) model() string {
	if e.cfg.Model == nil {
		return string(openai.SmallEmbedding3)
	}
	return e.cfg.Model()
}

func (e *OpenAIEmbedder) newClient(key string) *openai.Client {
	c := openai.DefaultConfig(key)
	if e.cfg.BaseURL != "" {
		c.BaseURL = e.cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

func (e *OpenAIEmbedder) clientFor(ctx context.Context) (*openai.Client, error) {
	if key := apiKeyFromContext(ctx); key != "" {
		return e.newClient(key), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	var key string
	if e.cfg.APIKey != nil {
		key = e.cfg.APIKey()
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	e.client = e.newClient(key)
	return e.client, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one API request. Rows are placed by the index
// the API reports, not by response order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	client, err := e.clientFor(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model()),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI embeddings error: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("OpenAI embeddings error: unexpected index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	e.mu.Lock()
	if len(out[0]) > 0 {
		e.dim = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}

// Dimensions returns the model's dimension, corrected by the last response.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
