// Package server provides the HTTP API for rag-serve.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/config"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/search"
)

// Searcher answers retrieval and generation requests.
type Searcher interface {
	Search(ctx context.Context, query string, k int) (*models.SearchResponse, error)
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
}

// Jobs accepts documents for background indexing and reports on them.
type Jobs interface {
	Submit(ctx context.Context, filename string, content []byte) (string, error)
	Status(ctx context.Context, id string) (*models.Job, error)
	Running() int
	Pending() int
}

// Extractor turns an uploaded document into plain text.
type Extractor interface {
	ExtractBytes(content []byte, filename string) (string, error)
}

// Server is the HTTP server for the rag-serve API.
type Server struct {
	engine    Searcher
	jobs      Jobs
	extractor Extractor
	snapshots search.Snapshots
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine Searcher,
	jobs Jobs,
	extractor Extractor,
	snapshots search.Snapshots,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:    engine,
		jobs:      jobs,
		extractor: extractor,
		snapshots: snapshots,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.Server.TimeoutSecs) * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/ingest", s.handleIngest)
	r.Post("/index-doc", s.handleIndexDoc)
	r.Get("/index-status/{job_id}", s.handleIndexStatus)
	r.Post("/query", s.handleQuery)
	r.Post("/generate", s.handleGenerate)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("platform", string(s.config.CurrentPlatform())))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}
