package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/embedding"
	"github.com/vishalkoriyalearning/rag-serve/internal/llm"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/search"
	"github.com/vishalkoriyalearning/rag-serve/internal/storage"
	"github.com/vishalkoriyalearning/rag-serve/internal/vector"
)

const (
	// LLMProviderParam selects a provider for /generate.
	LLMProviderParam = "llm_provider"
	// APIKeyHeader carries a one-off LLM credential.
	APIKeyHeader = "X-API-Key"
	// EmbeddingAPIKeyHeader carries a one-off hosted embedding credential.
	EmbeddingAPIKeyHeader = "X-Embedding-API-Key"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{
		"platform":     s.config.CurrentPlatform(),
		"running_jobs": s.jobs.Running(),
		"queued_jobs":  s.jobs.Pending(),
		"index_built":  false,
	}
	snap, found, err := s.snapshots.Current(r.Context())
	if err != nil {
		s.logger.Error("status: load index failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if found {
		out["index_built"] = true
		out["generation"] = snap.Generation.Name()
		out["vectors"] = snap.Index.Len()
		out["dimensions"] = snap.Index.Dimensions()
	}
	paths := []string{s.config.Storage.DataDir}
	if s.config.Jobs.Store == "sqlite" {
		paths = append(paths, s.config.Jobs.DatabasePath)
	}
	usage, err := storage.DiskUsage(paths...)
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else {
		out["disk_usage_bytes"] = usage.Bytes
		out["disk_usage_files"] = usage.Files
	}
	s.respondJSON(w, http.StatusOK, out)
}

// readUpload returns the multipart "file" part and its name.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return "", nil, false
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return "", nil, false
	}
	return header.Filename, content, true
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	name, content, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	text, err := s.extractor.ExtractBytes(content, name)
	if err != nil {
		s.logger.Debug("ingest: extraction failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ingested",
		"length": utf8.RuneCountInString(text),
	})
}

func (s *Server) handleIndexDoc(w http.ResponseWriter, r *http.Request) {
	name, content, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	id, err := s.jobs.Submit(r.Context(), name, content)
	if err != nil {
		s.logger.Error("submit index job failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": string(models.JobQueued), "job_id": id})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, err := s.jobs.Status(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// decodeQuery reads and validates a query body.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (models.QueryRequest, bool) {
	var q models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return q, false
	}
	if err := q.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	return q, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx := embedding.ContextWithAPIKey(r.Context(), r.Header.Get(EmbeddingAPIKeyHeader))
	s.logger.Debug("query request", zap.String("query", q.Query), zap.Int("top_k", q.TopK))
	resp, err := s.engine.Search(ctx, q.Query, q.TopK)
	if err != nil {
		s.respondSearchError(w, "query", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	req := models.GenerateRequest{
		QueryRequest: q,
		Provider:     r.URL.Query().Get(LLMProviderParam),
		Credential:   r.Header.Get(APIKeyHeader),
	}
	if req.Provider != "" {
		if _, err := llm.ParseName(req.Provider); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	ctx := embedding.ContextWithAPIKey(r.Context(), r.Header.Get(EmbeddingAPIKeyHeader))
	s.logger.Debug("generate request", zap.String("query", q.Query), zap.String("provider", req.Provider))
	resp, err := s.engine.Generate(ctx, req)
	if err != nil {
		s.respondSearchError(w, "generate", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondSearchError(w http.ResponseWriter, op string, err error) {
	var (
		pe *llm.ProviderError
		fe *llm.FallbackError
	)
	switch {
	case errors.Is(err, search.ErrIndexNotBuilt):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, llm.ErrUnknownProvider), errors.Is(err, llm.ErrProviderNotConfigured):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &fe), errors.As(err, &pe), errors.Is(err, embedding.ErrMissingAPIKey):
		s.logger.Warn(op+" failed upstream", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, vector.ErrDimensionMismatch):
		s.respondError(w, http.StatusConflict, err.Error()+" (rebuild the index for the current embedding model)")
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
