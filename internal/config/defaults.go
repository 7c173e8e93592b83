package config

// ApplyDefaults sets default values for any zero values in cfg.
// Model names and hosts fall back to their environment variables before the
// built-in defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Platform == "" {
		cfg.Platform = PlatformLocal
	}
	cfg.Platform = ParsePlatform(string(cfg.Platform))
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = 180
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.KeepGenerations == 0 {
		cfg.Storage.KeepGenerations = 2
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 300
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 50
	}

	local := &cfg.Embedding.Local
	if local.ModelName == "" {
		local.ModelName = envOr("LOCAL_EMBEDDING_MODEL", "all-MiniLM-L6-v2")
	}
	if local.Dimensions == 0 {
		local.Dimensions = 384
	}
	if local.MaxTokens == 0 {
		local.MaxTokens = 256
	}
	if local.CacheSize == 0 {
		local.CacheSize = 10000
	}
	remote := &cfg.Embedding.Remote
	if remote.Model == "" {
		remote.Model = envOr("EMBEDDING_MODEL", "text-embedding-3-small")
	}
	if remote.APIKeyEnv == "" {
		remote.APIKeyEnv = "OPENAI_API_KEY"
	}

	oa := &cfg.LLM.OpenAI
	if oa.Model == "" {
		oa.Model = envOr("OPENAI_MODEL", "gpt-5.2")
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = "OPENAI_API_KEY"
	}
	if oa.MaxTokens == 0 {
		oa.MaxTokens = 512
	}
	gm := &cfg.LLM.Gemini
	if gm.Model == "" {
		gm.Model = envOr("GEMINI_MODEL", "gemini-2.5-pro")
	}
	if gm.APIKeyEnv == "" {
		gm.APIKeyEnv = "GEMINI_API_KEY"
	}
	ol := &cfg.LLM.Ollama
	if ol.Host == "" {
		ol.Host = envOr("OLLAMA_HOST", "http://localhost:11434")
	}
	if ol.Model == "" {
		ol.Model = envOr("OLLAMA_MODEL", "llama3.2")
	}
	if ol.TimeoutSecs == 0 {
		ol.TimeoutSecs = 120
	}

	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = 2
	}
	if cfg.Jobs.Store == "" {
		cfg.Jobs.Store = "memory"
	}
	if cfg.Jobs.DatabasePath == "" {
		cfg.Jobs.DatabasePath = "./data/jobs.db"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
}

// Default returns a config with all defaults applied. Relative paths stay
// relative to the working directory.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
