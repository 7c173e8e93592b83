package llm

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt is sent ahead of every hosted chat prompt.
const SystemPrompt = "Answer with context:"

// OpenAIConfig configures the OpenAI chat provider.
type OpenAIConfig struct {
	// Model returns the chat model; it is called on every request.
	Model     func() string
	BaseURL   string
	MaxTokens int

	// APIKey returns the shared key; it is called until a client has been built.
	APIKey func() string
}

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	cfg OpenAIConfig

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIProvider returns an OpenAI provider. The shared client is built on first use.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg}
}

// Name returns OpenAI.
func (p *OpenAIProvider) Name() Name {
	return OpenAI
}

func (p *OpenAIProvider) newClient(key string) *openai.Client {
	c := openai.DefaultConfig(key)
	if p.cfg.BaseURL != "" {
		c.BaseURL = p.cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

func (p *OpenAIProvider) clientFor(key string) (*openai.Client, error) {
	if key != "" {
		return p.newClient(key), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	if p.cfg.APIKey != nil {
		key = p.cfg.APIKey()
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	p.client = p.newClient(key)
	return p.client, nil
}

// Generate sends the system prompt and req.Prompt as one chat exchange.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	client, err := p.clientFor(req.APIKey)
	if err != nil {
		return "", err
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.Model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxCompletionTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
