// Package indexer provides document chunking and the asynchronous index job orchestrator.
package indexer

import (
	"errors"
	"strings"
)

// Default chunking parameters, in words.
const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50
)

// ErrInvalidChunkParams is returned when the window would never advance.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters: need chunk_size > 0 and 0 <= overlap < chunk_size")

// Chunk splits text into overlapping windows of chunkSize words, each joined
// by single spaces. The window start advances by chunkSize-overlap words and
// chunking stops once the start reaches the end of the text, so the final
// window may hold only words already covered by the one before it. Empty or
// whitespace-only text yields an empty slice.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidChunkParams
	}
	words := strings.Fields(text)
	chunks := make([]string, 0, estimateChunks(len(words), chunkSize, overlap))
	step := chunkSize - overlap
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks, nil
}

func estimateChunks(n, chunkSize, overlap int) int {
	step := chunkSize - overlap
	return (n + step - 1) / step
}
