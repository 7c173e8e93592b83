package embedding

import (
	"errors"
	"os"

	"go.uber.org/zap"
)

// ErrONNXUnavailable is returned by NewONNXEmbedder in builds without CGO.
var ErrONNXUnavailable = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// LocalConfig configures the in-process embedding backend.
type LocalConfig struct {
	ModelName  string
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
}

// NewLocal builds the in-process backend. It loads the ONNX model when one is
// configured and present, and otherwise returns a HashingEmbedder of the same
// dimension so that indexing works without model files.
func NewLocal(cfg LocalConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelPath == "" {
		logger.Info("no local model configured, using hashing embedder",
			zap.String("model", cfg.ModelName), zap.Int("dimensions", cfg.Dimensions))
		return NewHashingEmbedder(cfg.Dimensions), nil
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		logger.Warn("local model not found, using hashing embedder",
			zap.String("path", cfg.ModelPath), zap.Error(err))
		return NewHashingEmbedder(cfg.Dimensions), nil
	}
	e, err := NewONNXEmbedder(cfg)
	if errors.Is(err, ErrONNXUnavailable) {
		logger.Warn("ONNX runtime not compiled in, using hashing embedder", zap.String("model", cfg.ModelName))
		return NewHashingEmbedder(cfg.Dimensions), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("loaded local embedding model", zap.String("model", cfg.ModelName), zap.String("path", cfg.ModelPath))
	return e, nil
}
