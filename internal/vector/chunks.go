package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveChunks writes the ordered chunk texts to path as a JSON array.
func SaveChunks(path string, chunks []string) error {
	if chunks == nil {
		chunks = []string{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write chunk file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync chunk file: %w", err)
	}
	return f.Close()
}

// LoadChunks reads chunk texts written by SaveChunks. A missing file yields
// an empty slice.
func LoadChunks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	var chunks []string
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse chunk file %s: %w", path, err)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}
