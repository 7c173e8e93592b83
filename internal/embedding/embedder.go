// Package embedding converts text into fixed-dimension float32 vectors using a
// local ONNX model, a hosted API, or a deterministic hashing fallback.
package embedding

import "context"

// Embedder produces vector embeddings for text. EmbedBatch returns one row per
// input in input order; an empty input yields an empty result and no error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach is the EmbedBatch of embedders that only do one text at a time.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
