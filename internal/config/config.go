// Package config provides configuration loading and structs for the rag-serve server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Platform is the deployment mode. It decides the embedding backend and the
// default LLM fallback policy.
type Platform string

const (
	// PlatformLocal runs embeddings in-process and may fall back to a self-hosted LLM.
	PlatformLocal Platform = "LOCAL"
	// PlatformCloud uses hosted embeddings and the primary hosted LLM only.
	PlatformCloud Platform = "CLOUD"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Platform  Platform        `yaml:"platform"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// StorageConfig holds the data directory for index generations.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// KeepGenerations is how many published generations stay on disk.
	KeepGenerations int `yaml:"keep_generations"`
}

// ChunkingConfig holds word-window chunking settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds settings for both embedding backends.
type EmbeddingConfig struct {
	Local  LocalEmbeddingConfig  `yaml:"local"`
	Remote RemoteEmbeddingConfig `yaml:"remote"`
}

// LocalEmbeddingConfig holds ONNX embedder settings.
type LocalEmbeddingConfig struct {
	ModelName  string `yaml:"model_name"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RemoteEmbeddingConfig holds hosted embedding API settings.
type RemoteEmbeddingConfig struct {
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// LLMConfig holds per-provider generation settings.
type LLMConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig configures the primary hosted chat provider.
type OpenAIConfig struct {
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxTokens caps the completion length; 0 leaves the model default.
	MaxTokens int    `yaml:"max_tokens"`
}

// OllamaConfig configures the self-hosted provider.
type OllamaConfig struct {
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// JobsConfig holds index job execution and registry settings.
type JobsConfig struct {
	Workers int `yaml:"workers"`
	// Store is "memory" (default) or "sqlite".
	Store        string `yaml:"store"`
	DatabasePath string `yaml:"database_path"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Jobs.DatabasePath = expandPath(cfg.Jobs.DatabasePath, configDir)
	if cfg.Embedding.Local.ModelPath != "" {
		cfg.Embedding.Local.ModelPath = expandPath(cfg.Embedding.Local.ModelPath, configDir)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// CurrentPlatform returns the deployment mode. The PLATFORM environment variable
// is read on every call and wins over the file value.
func (c *Config) CurrentPlatform() Platform {
	if v := strings.TrimSpace(os.Getenv("PLATFORM")); v != "" {
		return ParsePlatform(v)
	}
	return ParsePlatform(string(c.Platform))
}

// ParsePlatform normalizes s; anything other than CLOUD is LOCAL.
func ParsePlatform(s string) Platform {
	if strings.EqualFold(strings.TrimSpace(s), string(PlatformCloud)) {
		return PlatformCloud
	}
	return PlatformLocal
}

// APIKey returns the value of the environment variable named by envName.
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

// CurrentModel returns OPENAI_MODEL when set, else the configured model.
func (o OpenAIConfig) CurrentModel() string {
	return envOr("OPENAI_MODEL", o.Model)
}

// CurrentModel returns GEMINI_MODEL when set, else the configured model.
func (g GeminiConfig) CurrentModel() string {
	return envOr("GEMINI_MODEL", g.Model)
}

// CurrentHost returns OLLAMA_HOST when set, else the configured host.
func (o OllamaConfig) CurrentHost() string {
	return envOr("OLLAMA_HOST", o.Host)
}

// CurrentModel returns OLLAMA_MODEL when set, else the configured model.
func (o OllamaConfig) CurrentModel() string {
	return envOr("OLLAMA_MODEL", o.Model)
}

// CurrentModel returns EMBEDDING_MODEL when set, else the configured model.
func (r RemoteEmbeddingConfig) CurrentModel() string {
	return envOr("EMBEDDING_MODEL", r.Model)
}

// OllamaTimeout returns the request timeout for the self-hosted provider.
func (o OllamaConfig) OllamaTimeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// envOr returns the environment value for name, or fallback when unset.
func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
