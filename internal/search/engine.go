// Package search provides retrieval over the published index and the
// retrieval-augmented generation pipeline on top of it.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/embedding"
	"github.com/vishalkoriyalearning/rag-serve/internal/llm"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/vector"
)

// ErrIndexNotBuilt is returned when nothing has been indexed yet.
var ErrIndexNotBuilt = errors.New("Index not built. Use /index-doc first.")

// Snapshots returns the live index generation.
type Snapshots interface {
	Current(ctx context.Context) (*vector.Snapshot, bool, error)
}

// Dispatcher sends a prompt to an LLM provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt, explicit, credential string) (*llm.Result, error)
}

// Engine answers retrieval and generation requests.
type Engine struct {
	embedder   embedding.Embedder
	snapshots  Snapshots
	dispatcher Dispatcher
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine. dispatcher may be nil when only Search is used.
func NewEngine(embedder embedding.Embedder, snapshots Snapshots, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		embedder:   embedder,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the k chunks nearest to query, closest first.
func (e *Engine) Search(ctx context.Context, query string, k int) (*models.SearchResponse, error) {
	snap, found, err := e.snapshots.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	if !found || snap.Index.Len() == 0 || len(snap.Chunks) == 0 {
		return nil, ErrIndexNotBuilt
	}

	vecs, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding failed: got %d vectors for one query", len(vecs))
	}

	hits, err := snap.Index.Search(vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Position >= len(snap.Chunks) {
			return nil, fmt.Errorf("%w: row %d has no chunk", vector.ErrInconsistentGeneration, h.Position)
		}
		results = append(results, models.SearchResult{
			ChunkIndex: h.Position,
			Text:       snap.Chunks[h.Position],
			Distance:   h.Distance,
		})
	}
	e.logger.Debug("search",
		zap.String("generation", snap.Generation.Name()),
		zap.Int("k", k),
		zap.Int("hits", len(results)))
	return &models.SearchResponse{Results: results}, nil
}

// Generate retrieves context for req and asks an LLM to answer with it.
func (e *Engine) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	if e.dispatcher == nil {
		return nil, fmt.Errorf("%w: no dispatcher", llm.ErrProviderNotConfigured)
	}
	resp, err := e.Search(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		texts[i] = r.Text
	}
	res, err := e.dispatcher.Dispatch(ctx, BuildPrompt(req.Query, texts), req.Provider, req.Credential)
	if err != nil {
		return nil, err
	}
	return &models.GenerateResponse{Response: res.Text, Source: string(res.Source)}, nil
}
