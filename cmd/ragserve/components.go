package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/config"
	"github.com/vishalkoriyalearning/rag-serve/internal/embedding"
	"github.com/vishalkoriyalearning/rag-serve/internal/extract"
	"github.com/vishalkoriyalearning/rag-serve/internal/indexer"
	"github.com/vishalkoriyalearning/rag-serve/internal/llm"
	"github.com/vishalkoriyalearning/rag-serve/internal/search"
	"github.com/vishalkoriyalearning/rag-serve/internal/storage"
	"github.com/vishalkoriyalearning/rag-serve/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Jobs      storage.JobStore
	Store     *vector.Store
	Embedder  embedding.Embedder
	Extractor *extract.Extractor
	Engine    *search.Engine
	Indexer   *indexer.Orchestrator
}

// Close waits for running jobs until ctx is done, then releases everything.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Indexer != nil {
		errs = append(errs, c.Indexer.Close(ctx))
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Jobs != nil {
		errs = append(errs, c.Jobs.Close())
	}
	return errors.Join(errs...)
}

func openJobStore(cfg *config.Config) (storage.JobStore, error) {
	switch cfg.Jobs.Store {
	case "memory", "":
		return storage.NewMemoryJobStore(), nil
	case "sqlite":
		return storage.NewSQLiteJobStore(cfg.Jobs.DatabasePath)
	}
	return nil, fmt.Errorf("unknown job store %q; use memory or sqlite", cfg.Jobs.Store)
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) *embedding.Selector {
	localCfg := embedding.LocalConfig{
		ModelName:  cfg.Embedding.Local.ModelName,
		ModelPath:  cfg.Embedding.Local.ModelPath,
		Dimensions: cfg.Embedding.Local.Dimensions,
		MaxTokens:  cfg.Embedding.Local.MaxTokens,
		CacheSize:  cfg.Embedding.Local.CacheSize,
	}
	local := embedding.NewLazy(localCfg.Dimensions, func() (embedding.Embedder, error) {
		return embedding.NewLocal(localCfg, logger)
	})
	remoteCfg := cfg.Embedding.Remote
	remote := embedding.NewOpenAIEmbedder(embedding.RemoteConfig{
		Model:   remoteCfg.CurrentModel,
		BaseURL: remoteCfg.BaseURL,
		APIKey:  func() string { return config.APIKey(remoteCfg.APIKeyEnv) },
	})
	return embedding.NewSelector(cfg.CurrentPlatform, local, remote)
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) *llm.Dispatcher {
	oa, gm, ol := cfg.LLM.OpenAI, cfg.LLM.Gemini, cfg.LLM.Ollama
	providers := []llm.Provider{
		llm.NewOpenAIProvider(llm.OpenAIConfig{
			Model:     oa.CurrentModel,
			BaseURL:   oa.BaseURL,
			MaxTokens: oa.MaxTokens,
			APIKey:    func() string { return config.APIKey(oa.APIKeyEnv) },
		}),
		llm.NewGeminiProvider(llm.GeminiConfig{
			Model:     gm.CurrentModel,
			MaxTokens: gm.MaxTokens,
			APIKey:    func() string { return config.APIKey(gm.APIKeyEnv) },
		}),
		llm.NewOllamaProvider(llm.OllamaConfig{
			Host:    ol.CurrentHost,
			Model:   ol.CurrentModel,
			Timeout: ol.OllamaTimeout(),
		}),
	}
	return llm.NewDispatcher(cfg.CurrentPlatform, providers, llm.WithLogger(logger))
}

// initializeComponents wires the pipeline. When recoverJobs is set, jobs left
// queued by a previous process are marked failed.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, recoverJobs bool) (*Components, error) {
	jobs, err := openJobStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job store: %w", err)
	}
	c := &Components{Jobs: jobs}

	if recoverJobs {
		n, err := jobs.FailQueued(ctx, "interrupted by restart")
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("failed to recover jobs: %w", err)
		}
		if n > 0 {
			logger.Warn("marked interrupted jobs failed", zap.Int("jobs", n))
		}
	}

	store, err := vector.NewStore(cfg.Storage.DataDir,
		vector.WithKeepGenerations(cfg.Storage.KeepGenerations),
		vector.WithLogger(logger))
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	c.Store = store
	c.Embedder = newEmbedder(cfg, logger)
	c.Extractor = extract.NewExtractor()

	c.Indexer, err = indexer.New(jobs, c.Extractor, c.Embedder, store,
		indexer.WithLogger(logger),
		indexer.WithChunking(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		indexer.WithWorkers(cfg.Jobs.Workers))
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	c.Engine = search.NewEngine(c.Embedder, store, newDispatcher(cfg, logger), search.WithLogger(logger))

	logger.Info("components initialized",
		zap.String("platform", string(cfg.CurrentPlatform())),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("job_store", cfg.Jobs.Store),
		zap.Uint64("generation", store.Published().Seq))
	return c, nil
}
