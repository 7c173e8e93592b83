package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Lazy defers construction of an embedder until its first use and then keeps
// it for the lifetime of the Lazy. A failed construction is not cached; the
// next call tries again.
type Lazy struct {
	build      func() (Embedder, error)
	dimensions int

	mu sync.Mutex
	e  Embedder
}

// NewLazy wraps build. dimensions is reported by Dimensions until the
// embedder has been constructed.
func NewLazy(dimensions int, build func() (Embedder, error)) *Lazy {
	return &Lazy{build: build, dimensions: dimensions}
}

func (l *Lazy) get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.e != nil {
		return l.e, nil
	}
	e, err := l.build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	l.e = e
	return e, nil
}

// Embed constructs the embedder if needed and embeds text.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// EmbedBatch constructs the embedder if needed and embeds texts.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}

// Dimensions returns the dimension of the constructed embedder, or the
// configured one before construction.
func (l *Lazy) Dimensions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.e != nil {
		return l.e.Dimensions()
	}
	return l.dimensions
}

// Loaded reports whether the embedder has been constructed.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e != nil
}

// Close closes the constructed embedder, if any.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.e == nil {
		return nil
	}
	err := l.e.Close()
	l.e = nil
	return err
}
