package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func static(s string) func() string {
	return func() string { return s }
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var gotAuth string
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxCompletionTokens int `json:"max_completion_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"AI is a field."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		Model:     static("gpt-test"),
		BaseURL:   srv.URL + "/v1",
		MaxTokens: 512,
		APIKey:    static("sk-shared"),
	})

	text, err := p.Generate(context.Background(), Request{Prompt: "Context:\nx\n\nQuestion:\ny"})
	require.NoError(t, err)
	assert.Equal(t, "AI is a field.", text)
	assert.Equal(t, "Bearer sk-shared", gotAuth)
	assert.Equal(t, "gpt-test", body.Model)
	assert.Equal(t, 512, body.MaxCompletionTokens)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, SystemPrompt, body.Messages[0].Content)
	assert.Equal(t, "user", body.Messages[1].Role)

	_, err = p.Generate(context.Background(), Request{Prompt: "q", APIKey: "sk-once"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-once", gotAuth)
}

func TestOpenAIProvider_missingKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{Model: static("gpt-test"), APIKey: static("")})
	_, err := p.Generate(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIProvider_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Model: static("gpt-test"), BaseURL: srv.URL + "/v1", APIKey: static("k")})
	_, err := p.Generate(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)
}

type fakeModel struct {
	reply  string
	prompt string
	opts   llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.opts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.opts)
	}
	for _, part := range msgs[len(msgs)-1].Parts {
		if tp, ok := part.(llms.TextContent); ok {
			m.prompt = tp.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestGeminiProvider_sharedAndOneOffClients(t *testing.T) {
	var keys []string
	shared := &fakeModel{reply: "shared"}
	p := NewGeminiProvider(GeminiConfig{Model: static("gemini-test"), APIKey: static("g-shared")})
	p.newModel = func(_ context.Context, key string) (llms.Model, error) {
		keys = append(keys, key)
		if key == "g-shared" {
			return shared, nil
		}
		return &fakeModel{reply: "one-off"}, nil
	}

	for i := 0; i < 2; i++ {
		text, err := p.Generate(context.Background(), Request{Prompt: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "shared", text)
	}
	assert.Equal(t, "hello", shared.prompt)

	text, err := p.Generate(context.Background(), Request{Prompt: "hello", APIKey: "g-once"})
	require.NoError(t, err)
	assert.Equal(t, "one-off", text)
	assert.Equal(t, []string{"g-shared", "g-once"}, keys)
}

func TestGeminiProvider_callOptions(t *testing.T) {
	for _, maxTokens := range []int{0, 256} {
		m := &fakeModel{reply: "ok"}
		p := NewGeminiProvider(GeminiConfig{Model: static("gemini-test"), MaxTokens: maxTokens, APIKey: static("k")})
		p.newModel = func(context.Context, string) (llms.Model, error) { return m, nil }

		_, err := p.Generate(context.Background(), Request{Prompt: "q"})
		require.NoError(t, err)
		assert.Equal(t, "gemini-test", m.opts.Model)
		assert.Equal(t, maxTokens, m.opts.MaxTokens)
	}
}

func TestGeminiProvider_missingKey(t *testing.T) {
	p := NewGeminiProvider(GeminiConfig{Model: static("gemini-test"), APIKey: static("")})
	_, err := p.Generate(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOllamaProvider_Generate(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		model = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama-test","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"local answer"},"response":"local answer","done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: static(srv.URL), Model: static("llama-test")})
	text, err := p.Generate(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "local answer", text)
	assert.Equal(t, "llama-test", model)
}

func TestOllamaProvider_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: static(url), Model: static("llama-test")})
	_, err := p.Generate(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: Gemini, Err: ErrEmptyResponse}
	assert.Equal(t, "gemini error: empty response", err.Error())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
