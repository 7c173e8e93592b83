package llm

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	Model     func() string
	MaxTokens int
	APIKey    func() string
}

// GeminiProvider calls Gemini through langchaingo.
type GeminiProvider struct {
	cfg GeminiConfig

	// newModel is replaced in tests.
	newModel func(ctx context.Context, key string) (llms.Model, error)

	mu     sync.Mutex
	shared llms.Model
}

// NewGeminiProvider returns a Gemini provider. The shared client is built on first use.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg: cfg,
		newModel: func(ctx context.Context, key string) (llms.Model, error) {
			return googleai.New(ctx, googleai.WithAPIKey(key), googleai.WithDefaultModel(cfg.Model()))
		},
	}
}

// Name returns Gemini.
func (p *GeminiProvider) Name() Name {
	return Gemini
}

func (p *GeminiProvider) modelFor(ctx context.Context, key string) (llms.Model, error) {
	if key != "" {
		return p.newModel(ctx, key)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared != nil {
		return p.shared, nil
	}
	if p.cfg.APIKey != nil {
		key = p.cfg.APIKey()
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	m, err := p.newModel(ctx, key)
	if err != nil {
		return nil, err
	}
	p.shared = m
	return m, nil
}

// Generate sends req.Prompt as a single-turn prompt.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	m, err := p.modelFor(ctx, req.APIKey)
	if err != nil {
		return "", err
	}
	opts := []llms.CallOption{llms.WithModel(p.cfg.Model())}
	if p.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.cfg.MaxTokens))
	}
	return llms.GenerateFromSinglePrompt(ctx, m, req.Prompt, opts...)
}
