package embedding

import (
	"context"

	"github.com/vishalkoriyalearning/rag-serve/pkg/utils"
)

// HashingEmbedder is a deterministic bag-of-words embedder. Each normalized
// word is hashed into one of dims buckets with a hashed sign, and the result
// is L2-normalized, so texts sharing words land close together.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder of the given dimension (384 when <= 0).
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the hashed bag-of-words vector for text.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range Words(text) {
		h := hash32(word)
		sign := float32(1)
		if h&0x80000000 != 0 {
			sign = -1
		}
		emb[int(h&0x7fffffff)%e.dimensions] += sign
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds each text in order.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
