// Package llm wraps the supported LLM providers behind one interface and
// implements the provider selection and fallback policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Name identifies a provider. The set is closed: OpenAI, Gemini, Ollama.
type Name string

const (
	OpenAI Name = "openai"
	Gemini Name = "gemini"
	Ollama Name = "ollama"
)

// Names lists every provider.
var Names = []Name{OpenAI, Gemini, Ollama}

var (
	// ErrUnknownProvider is returned for a provider name outside the supported set.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrProviderNotConfigured is returned when a known provider was not wired in.
	ErrProviderNotConfigured = errors.New("llm provider not configured")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMissingAPIKey is returned by hosted providers with no key.
	ErrMissingAPIKey = errors.New("API key not set")
)

// ParseName returns the provider named s, case-insensitively.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Names {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of openai, gemini, ollama)", ErrUnknownProvider, s)
}

// Request is one generation call.
type Request struct {
	Prompt string
	// APIKey, when set, is used for this call only instead of the shared client.
	APIKey string
}

// Provider generates text for a prompt.
type Provider interface {
	Name() Name
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderError is a failed provider call. Its message is the structured form
// shown to callers, e.g. "openai error: context deadline exceeded".
type ProviderError struct {
	Provider Name
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackError reports that both the primary and the fallback provider failed.
type FallbackError struct {
	Primary  *ProviderError
	Fallback *ProviderError
}

func (e *FallbackError) Error() string {
	return e.Primary.Error() + "; fallback " + e.Fallback.Error()
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// call runs p and converts any failure, including an empty answer, into a *ProviderError.
func call(ctx context.Context, p Provider, req Request) (string, *ProviderError) {
	text, err := p.Generate(ctx, req)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Provider: p.Name(), Err: ErrEmptyResponse}
	}
	return text, nil
}
