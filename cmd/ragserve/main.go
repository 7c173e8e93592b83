// Package main is the ragserve CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	ragcli "github.com/vishalkoriyalearning/rag-serve/internal/cli"
	"github.com/vishalkoriyalearning/rag-serve/internal/config"
	"github.com/vishalkoriyalearning/rag-serve/internal/embedding"
	"github.com/vishalkoriyalearning/rag-serve/internal/eval"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/server"
	"github.com/vishalkoriyalearning/rag-serve/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// shutdownTimeout bounds how long running index jobs may finish after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	outputFlag := &cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output format: text or json", Value: "text"}
	topKFlag := &cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "number of chunks to retrieve (default from config)"}
	serverFlag := &cli.StringFlag{Name: "server", Usage: "server URL; empty uses the data directory directly"}
	embeddingKeyFlag := &cli.StringFlag{Name: "embedding-api-key", Usage: "one-off key for hosted embeddings"}

	return &cli.App{
		Name:    "ragserve",
		Usage:   "Retrieval-augmented generation over your documents",
		Version: version,
		Flags:   []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path", Value: defaultConfigPath},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(*cli.Context) error {
			// A missing .env is normal.
			_ = godotenv.Load()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serveCommand,
			},
			{
				Name:      "index",
				Usage:     "Index a document and wait for the job to finish",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "how long to wait for the job", Value: 10 * time.Minute},
					outputFlag,
				},
				Action: indexCommand,
			},
			{
				Name:      "query",
				Usage:     "Retrieve the chunks nearest to a query",
				ArgsUsage: "<text>",
				Flags:     []cli.Flag{topKFlag, outputFlag, serverFlag, embeddingKeyFlag},
				Action:    queryCommand,
			},
			{
				Name:      "generate",
				Usage:     "Answer a query with retrieved context",
				ArgsUsage: "<text>",
				Flags:     []cli.Flag{
					topKFlag, outputFlag, serverFlag, embeddingKeyFlag,
					&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "LLM provider: openai, gemini or ollama"},
					&cli.StringFlag{Name: "api-key", Usage: "one-off key for the LLM provider"},
				},
				Action: generateCommand,
			},
			{
				Name:      "eval",
				Usage:     "Measure recall@k against a YAML file of cases",
				ArgsUsage: "<cases.yaml>",
				Flags:     []cli.Flag{
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "number of chunks to retrieve", Value: 5},
					outputFlag,
				},
				Action: evalCommand,
			},
			{
				Name:   "version",
				Usage:  "Show version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "ragserve version %s\n", version)
					return nil
				},
			},
		},
	}
}

// loadConfig loads config from path. A missing file at the default path
// means built-in defaults, so the binary runs from an empty directory.
// Returns the config and the path that was actually loaded, empty for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			if abs, err := filepath.Abs(cfg.Storage.DataDir); err == nil {
				cfg.Storage.DataDir = abs
			}
			if abs, err := filepath.Abs(cfg.Jobs.DatabasePath); err == nil {
				cfg.Jobs.DatabasePath = abs
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger for a command.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || c.Bool("debug")
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func outputFormat(c *cli.Context) (ragcli.OutputFormat, error) {
	return ragcli.ParseOutputFormat(c.String("output"))
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func serveCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	components, err := initializeComponents(c.Context, cfg, logger, true)
	if err != nil {
		return err
	}

	srv := server.NewServer(components.Engine, components.Indexer, components.Extractor, components.Store, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var serveErr error
	select {
	case <-sigChan:
	case serveErr = <-errCh:
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := components.Close(ctx); err != nil {
		logger.Warn("component shutdown", zap.Error(err))
	}
	return serveErr
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ragserve index <file>", 1)
	}
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	path := c.Args().First()
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	components, err := initializeComponents(c.Context, cfg, logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close(context.Background()) }()

	id, err := components.Indexer.Submit(c.Context, filepath.Base(path), content)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	job, err := components.Indexer.Wait(ctx, id)
	if err != nil {
		return fmt.Errorf("wait for job %s: %w", id, err)
	}
	if err := ragcli.WriteJob(c.App.Writer, job, format); err != nil {
		return err
	}
	if job.Status == models.JobFailed {
		return cli.Exit("", 1)
	}
	return nil
}

// queryRequest reads the positional query and --top-k.
func queryRequest(c *cli.Context, cfg *config.Config) (models.QueryRequest, error) {
	q := models.QueryRequest{Query: buildQuery(c.Args().Slice()), TopK: c.Int("top-k")}
	if err := q.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
		return q, cli.Exit(fmt.Sprintf("usage: ragserve %s <text>: %v", c.Command.Name, err), 1)
	}
	return q, nil
}

func queryCommand(c *cli.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	q, err := queryRequest(c, cfg)
	if err != nil {
		return err
	}

	headers := map[string]string{server.EmbeddingAPIKeyHeader: c.String("embedding-api-key")}
	var resp *models.SearchResponse
	if base := c.String("server"); base != "" {
		resp = &models.SearchResponse{}
		err = postJSON(c.Context, base+"/query", headers, q, resp)
	} else {
		resp, err = withEngine(c, cfg, logger, func(ctx context.Context, comp *Components) (*models.SearchResponse, error) {
			return comp.Engine.Search(ctx, q.Query, q.TopK)
		})
	}
	if err != nil {
		return err
	}
	return ragcli.WriteSearchResults(c.App.Writer, resp, format)
}

func generateCommand(c *cli.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	q, err := queryRequest(c, cfg)
	if err != nil {
		return err
	}
	req := models.GenerateRequest{QueryRequest: q, Provider: c.String("provider"), Credential: c.String("api-key")}

	var resp *models.GenerateResponse
	if base := c.String("server"); base != "" {
		endpoint := base + "/generate"
		if req.Provider != "" {
			endpoint += "?" + url.Values{server.LLMProviderParam: {req.Provider}}.Encode()
		}
		headers := map[string]string{
			server.APIKeyHeader:          req.Credential,
			server.EmbeddingAPIKeyHeader: c.String("embedding-api-key"),
		}
		resp = &models.GenerateResponse{}
		err = postJSON(c.Context, endpoint, headers, q, resp)
	} else {
		resp, err = withEngine(c, cfg, logger, func(ctx context.Context, comp *Components) (*models.GenerateResponse, error) {
			return comp.Engine.Generate(ctx, req)
		})
	}
	if err != nil {
		return err
	}
	return ragcli.WriteAnswer(c.App.Writer, resp, format)
}

func evalCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ragserve eval <cases.yaml>", 1)
	}
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	cases, err := eval.LoadCases(c.Args().First())
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	report, err := withEngine(c, cfg, logger, func(ctx context.Context, comp *Components) (*eval.Report, error) {
		return eval.RecallAtK(ctx, comp.Engine, cases, c.Int("top-k"))
	})
	if err != nil {
		return err
	}
	return ragcli.WriteReport(c.App.Writer, report, format)
}

// withEngine runs fn against freshly initialized components, attaching the
// one-off embedding key when one was given.
func withEngine[T any](c *cli.Context, cfg *config.Config, logger *zap.Logger, fn func(context.Context, *Components) (T, error)) (T, error) {
	var zero T
	components, err := initializeComponents(c.Context, cfg, logger, false)
	if err != nil {
		return zero, err
	}
	defer func() { _ = components.Close(context.Background()) }()
	ctx := c.Context
	if key := c.String("embedding-api-key"); key != "" {
		ctx = embedding.ContextWithAPIKey(ctx, key)
	}
	return fn(ctx, components)
}
