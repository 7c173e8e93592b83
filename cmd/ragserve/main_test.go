package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/vishalkoriyalearning/rag-serve/internal/config"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/storage"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"AI"}, "AI"},
		{"multiple words", []string{"What", "is", "AI?"}, "What is AI?"},
		{"single quoted phrase", []string{"What is AI?"}, "What is AI?"},
		{"surrounding space", []string{"  AI  "}, "AI"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_defaultPathMissing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want defaults", resolved)
	}
	if !filepath.IsAbs(cfg.Storage.DataDir) || cfg.Server.Port != 8000 {
		t.Errorf("unexpected defaults: %+v", cfg.Storage)
	}
}

func TestLoadConfig_explicitMissing(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestOpenJobStore(t *testing.T) {
	cfg := config.Default()
	js, err := openJobStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := js.(*storage.MemoryJobStore); !ok {
		t.Errorf("default store = %T", js)
	}
	_ = js.Close()

	cfg.Jobs.Store = "sqlite"
	cfg.Jobs.DatabasePath = filepath.Join(t.TempDir(), "db", "jobs.db")
	js, err = openJobStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := js.(*storage.SQLiteJobStore); !ok {
		t.Errorf("sqlite store = %T", js)
	}
	_ = js.Close()

	cfg.Jobs.Store = "redis"
	if _, err := openJobStore(cfg); err == nil {
		t.Error("expected error for unknown store")
	}
}

const testDoc = "AI is a branch of computer science that builds smart machines. " +
	"Bananas grow in tropical climates and ripen quickly under warm sun. " +
	"Rivers flow north through green valleys toward the cold sea."

// testApp writes a config rooted in a temp dir and returns a runner for CLI args.
func testApp(t *testing.T) (run func(args ...string) (string, error), dir string) {
	t.Helper()
	t.Setenv("PLATFORM", "")
	dir = t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := "platform: LOCAL\n" +
		"storage:\n  data_dir: ./data\n" +
		"chunking:\n  chunk_size: 10\n  chunk_overlap: 2\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return func(args ...string) (string, error) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		app.ErrWriter = &out
		app.ExitErrHandler = func(*cli.Context, error) {}
		err := app.Run(append([]string{"ragserve", "--config", cfgPath}, args...))
		return out.String(), err
	}, dir
}

func TestIndexQueryEval(t *testing.T) {
	run, dir := testApp(t)
	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte(testDoc), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run("index", "--output", "json", doc)
	if err != nil {
		t.Fatalf("index: %v\n%s", err, out)
	}
	var job models.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job %q: %v", out, err)
	}
	if job.Status != models.JobCompleted || job.ChunksIndexed < 3 || job.EmbeddingDim != 384 {
		t.Fatalf("job: %+v", job)
	}

	out, err = run("query", "--output", "json", "--top-k", "1", "What", "is", "AI?")
	if err != nil {
		t.Fatalf("query: %v\n%s", err, out)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode results %q: %v", out, err)
	}
	if len(resp.Results) != 1 || !strings.Contains(resp.Results[0].Text, "AI is a branch of computer science") {
		t.Errorf("results: %+v", resp.Results)
	}

	cases := filepath.Join(dir, "cases.yaml")
	if err := os.WriteFile(cases, []byte("- query: What is AI?\n  answer: AI is a branch\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err = run("eval", "--top-k", "1", cases)
	if err != nil {
		t.Fatalf("eval: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Recall@1: 1.000") {
		t.Errorf("eval output: %s", out)
	}
}

func TestQuery_notBuilt(t *testing.T) {
	run, _ := testApp(t)
	_, err := run("query", "What is AI?")
	if err == nil || !strings.Contains(err.Error(), "Index not built") {
		t.Errorf("err = %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	run, _ := testApp(t)
	out, err := run("version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "ragserve version ") {
		t.Errorf("got %q", out)
	}
}
