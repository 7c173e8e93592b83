package embedding

import (
	"context"
	"errors"

	"github.com/vishalkoriyalearning/rag-serve/internal/config"
)

// Selector routes every call to the local or the remote backend, chosen by
// the platform mode at the time of the call.
type Selector struct {
	platform func() config.Platform
	local    Embedder
	remote   Embedder
}

// NewSelector returns a Selector. platform is evaluated on every call.
func NewSelector(platform func() config.Platform, local, remote Embedder) *Selector {
	return &Selector{platform: platform, local: local, remote: remote}
}

// Current returns the backend for the current platform mode.
func (s *Selector) Current() Embedder {
	if s.platform() == config.PlatformCloud {
		return s.remote
	}
	return s.local
}

// Embed embeds text with the current backend.
func (s *Selector) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.Current().Embed(ctx, text)
}

// EmbedBatch embeds texts with the current backend.
func (s *Selector) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.Current().EmbedBatch(ctx, texts)
}

// Dimensions returns the dimension of the current backend.
func (s *Selector) Dimensions() int {
	return s.Current().Dimensions()
}

// Close closes both backends.
func (s *Selector) Close() error {
	return errors.Join(s.local.Close(), s.remote.Close())
}
