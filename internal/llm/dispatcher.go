package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/config"
)

// Result is a generated answer and the provider that produced it.
type Result struct {
	Text   string
	Source Name
}

// Dispatcher picks the provider for each generation:
//
//   - an explicit provider name is dispatched directly, with no fallback;
//   - otherwise in LOCAL mode OpenAI is tried first and Ollama answers when
//     OpenAI fails or returns nothing;
//   - otherwise in CLOUD mode only OpenAI is tried.
//
// The platform mode is read on every call.
type Dispatcher struct {
	providers map[Name]Provider
	platform  func() config.Platform
	logger    *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a logger for fallback events.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher returns a Dispatcher over providers, keyed by their Name.
func NewDispatcher(platform func() config.Platform, providers []Provider, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		providers: make(map[Name]Provider, len(providers)),
		platform:  platform,
		logger:    zap.NewNop(),
	}
	for _, p := range providers {
		d.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) provider(n Name) (Provider, error) {
	p, ok := d.providers[n]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, n)
	}
	return p, nil
}

// Dispatch generates an answer for prompt. explicit is a provider name or
// empty for the mode default; credential, when set, is used as a one-off key
// by the hosted provider that is called. Provider failures are returned as
// *ProviderError or *FallbackError; an unknown explicit name wraps
// ErrUnknownProvider.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, explicit, credential string) (*Result, error) {
	req := Request{Prompt: prompt, APIKey: credential}

	if explicit != "" {
		name, err := ParseName(explicit)
		if err != nil {
			return nil, err
		}
		p, err := d.provider(name)
		if err != nil {
			return nil, err
		}
		text, perr := call(ctx, p, req)
		if perr != nil {
			return nil, perr
		}
		return &Result{Text: text, Source: name}, nil
	}

	primary, err := d.provider(OpenAI)
	if err != nil {
		return nil, err
	}
	text, perr := call(ctx, primary, req)
	if perr == nil {
		return &Result{Text: text, Source: OpenAI}, nil
	}
	mode := d.platform()
	if mode == config.PlatformCloud {
		return nil, perr
	}

	fallback, err := d.provider(Ollama)
	if err != nil {
		return nil, errors.Join(perr, err)
	}
	d.logger.Warn("primary llm failed, falling back",
		zap.String("mode", string(mode)),
		zap.String("primary", string(OpenAI)),
		zap.String("fallback", string(Ollama)),
		zap.Error(perr))
	text, ferr := call(ctx, fallback, Request{Prompt: prompt})
	if ferr != nil {
		return nil, &FallbackError{Primary: perr, Fallback: ferr}
	}
	return &Result{Text: text, Source: Ollama}, nil
}
