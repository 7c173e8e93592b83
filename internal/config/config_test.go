package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  data_dir: "./store"
chunking:
  chunk_size: 100
  chunk_overlap: 10
llm:
  gemini:
    max_tokens: 1024
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if want := filepath.Join(dir, "store"); cfg.Storage.DataDir != want {
		t.Errorf("data_dir = %s, want %s", cfg.Storage.DataDir, want)
	}
	if cfg.Chunking.ChunkSize != 100 || cfg.Chunking.ChunkOverlap != 10 {
		t.Errorf("unexpected chunking config: %+v", cfg.Chunking)
	}
	if cfg.LLM.Gemini.MaxTokens != 1024 || cfg.LLM.OpenAI.MaxTokens != 512 {
		t.Errorf("unexpected max tokens: gemini %d, openai %d", cfg.LLM.Gemini.MaxTokens, cfg.LLM.OpenAI.MaxTokens)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OLLAMA_HOST", "")
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Platform != PlatformLocal {
		t.Errorf("default platform: got %s", cfg.Platform)
	}
	if cfg.Chunking.ChunkSize != 300 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("default chunking: got %+v", cfg.Chunking)
	}
	if cfg.Embedding.Local.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Local.Dimensions)
	}
	if cfg.Embedding.Remote.Model != "text-embedding-3-small" {
		t.Errorf("default remote model: got %s", cfg.Embedding.Remote.Model)
	}
	if cfg.LLM.OpenAI.MaxTokens != 512 {
		t.Errorf("default max tokens: got %d", cfg.LLM.OpenAI.MaxTokens)
	}
	if cfg.LLM.Ollama.Host != "http://localhost:11434" {
		t.Errorf("default ollama host: got %s", cfg.LLM.Ollama.Host)
	}
	if cfg.Jobs.Store != "memory" {
		t.Errorf("default job store: got %s", cfg.Jobs.Store)
	}
	if cfg.Search.DefaultTopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Search.DefaultTopK)
	}
}

func TestApplyDefaults_envModelNames(t *testing.T) {
	t.Setenv("OLLAMA_MODEL", "llama3.2:1b")
	t.Setenv("GEMINI_MODEL", "gemini-3-flash-preview")
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.LLM.Ollama.Model != "llama3.2:1b" {
		t.Errorf("ollama model from env: got %s", cfg.LLM.Ollama.Model)
	}
	if cfg.LLM.Gemini.Model != "gemini-3-flash-preview" {
		t.Errorf("gemini model from env: got %s", cfg.LLM.Gemini.Model)
	}
}

func TestCurrentPlatform(t *testing.T) {
	cfg := &Config{Platform: PlatformLocal}

	t.Run("file value when env unset", func(t *testing.T) {
		t.Setenv("PLATFORM", "")
		if got := cfg.CurrentPlatform(); got != PlatformLocal {
			t.Errorf("CurrentPlatform() = %s, want LOCAL", got)
		}
	})
	t.Run("env wins and is read per call", func(t *testing.T) {
		t.Setenv("PLATFORM", "cloud")
		if got := cfg.CurrentPlatform(); got != PlatformCloud {
			t.Errorf("CurrentPlatform() = %s, want CLOUD", got)
		}
		t.Setenv("PLATFORM", "LOCAL")
		if got := cfg.CurrentPlatform(); got != PlatformLocal {
			t.Errorf("CurrentPlatform() = %s, want LOCAL", got)
		}
	})
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want Platform
	}{
		{"CLOUD", PlatformCloud},
		{" cloud ", PlatformCloud},
		{"LOCAL", PlatformLocal},
		{"", PlatformLocal},
		{"staging", PlatformLocal},
	}
	for _, tt := range tests {
		if got := ParsePlatform(tt.in); got != tt.want {
			t.Errorf("ParsePlatform(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DataDir: "/tmp/rag"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.DataDir != "/tmp/rag" {
		t.Errorf("loaded data_dir: got %s", loaded.Storage.DataDir)
	}
}

func TestCurrentModels_envOverride(t *testing.T) {
	cfg := Default()
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("EMBEDDING_MODEL", "")
	if got := cfg.LLM.OpenAI.CurrentModel(); got != "gpt-test" {
		t.Errorf("OpenAI CurrentModel() = %s", got)
	}
	if got := cfg.LLM.Ollama.CurrentHost(); got != "http://gpu-box:11434" {
		t.Errorf("Ollama CurrentHost() = %s", got)
	}
	if got := cfg.Embedding.Remote.CurrentModel(); got != cfg.Embedding.Remote.Model {
		t.Errorf("Remote CurrentModel() = %s, want configured %s", got, cfg.Embedding.Remote.Model)
	}
}
