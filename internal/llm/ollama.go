package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultOllamaTimeout bounds a self-hosted generation request.
const DefaultOllamaTimeout = 120 * time.Second

// OllamaConfig configures the self-hosted provider. Host and Model are
// called on every request.
type OllamaConfig struct {
	Host    func() string
	Model   func() string
	Timeout time.Duration
}

// OllamaProvider calls a self-hosted Ollama server through langchaingo.
type OllamaProvider struct {
	cfg    OllamaConfig
	client *http.Client
}

// NewOllamaProvider returns an Ollama provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	return &OllamaProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns Ollama.
func (p *OllamaProvider) Name() Name {
	return Ollama
}

// Generate sends req.Prompt to the configured model. req.APIKey is ignored.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	m, err := ollama.New(
		ollama.WithServerURL(p.cfg.Host()),
		ollama.WithModel(p.cfg.Model()),
		ollama.WithHTTPClient(p.client),
	)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return llms.GenerateFromSinglePrompt(ctx, m, req.Prompt)
}
