package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/embedding"
	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/parser"
	"github.com/hyperjump/stemrag/internal/rag"
	"github.com/hyperjump/stemrag/internal/store"
)

const healthTimeout = 5 * time.Second

type embeddingHealth struct {
	Status          string   `json:"status"`
	Backend         string   `json:"backend"`
	Host            string   `json:"host,omitempty"`
	Model           string   `json:"model,omitempty"`
	EmbeddingModel  string   `json:"embeddingModel"`
	AvailableModels []string `json:"availableModels,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type ragHealth struct {
	Status        string `json:"status"`
	DocumentCount int64  `json:"documentCount"`
	Error         string `json:"error,omitempty"`
}

type storeHealth struct {
	Backend    string `json:"backend"`
	Configured bool   `json:"configured"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Services  struct {
		Embedding embeddingHealth `json:"embedding"`
		RAG       ragHealth       `json:"rag"`
		Store     storeHealth     `json:"store"`
	} `json:"services"`
}

func statusOf(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var resp healthResponse
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	emb := embeddingHealth{
		Backend:        s.config.Embedding.Backend,
		EmbeddingModel: s.config.Embedding.Model,
	}
	if s.config.Embedding.Backend == "ollama" {
		emb.Host = s.config.Ollama.Host
		emb.Model = s.config.Ollama.Model
	}
	embOK := false
	if s.deps.Embedder == nil {
		emb.Error = "embedding backend is not configured"
	} else if err := s.deps.Embedder.Ping(ctx); err != nil {
		emb.Error = err.Error()
	} else {
		embOK = true
		if names, err := s.deps.Embedder.ListModels(ctx); err == nil {
			emb.AvailableModels = names
		}
	}
	emb.Status = statusOf(embOK)

	var counter rag.Counter
	if s.deps.Store != nil {
		counter = s.deps.Store
	}
	h := rag.CheckHealth(ctx, counter)

	resp.Services.Embedding = emb
	resp.Services.RAG = ragHealth{Status: statusOf(h.Available), DocumentCount: h.DocumentCount, Error: h.Error}
	resp.Services.Store = storeHealth{Backend: s.config.Store.Backend, Configured: s.deps.Store != nil}

	code := http.StatusOK
	resp.Status = "ok"
	if !embOK || !h.Available {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, resp)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "pong")
}

type dimensioner interface {
	Dimension() int
}

type cacheReporter interface {
	CacheStats() embedding.CacheStats
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	ctx := r.Context()
	chunks, err := s.deps.Store.CountAll(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources, err := s.deps.Store.ListSources(ctx)
	if err != nil {
		s.logger.Error("status: list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	opts := s.config.Chunking.Options()
	resp := map[string]interface{}{
		"chunks":              chunks,
		"sources":             len(sources),
		"backend":             s.config.Store.Backend,
		"embedding_backend":   s.config.Embedding.Backend,
		"embedding_model":     s.config.Embedding.Model,
		"chunk_max_chars":     opts.MaxChars,
		"chunk_overlap_chars": opts.OverlapChars,
		"top_k":               s.config.Retrieval.TopK,
		"threshold":           s.config.Retrieval.ThresholdOrDefault(),
	}
	if d, ok := s.deps.Store.(dimensioner); ok {
		resp["dimensions"] = d.Dimension()
	}
	if c, ok := s.deps.Embedder.(cacheReporter); ok {
		resp["query_cache"] = c.CacheStats()
	}
	if s.config.Store.Backend == store.BackendSQLite {
		if n, err := store.SQLiteDiskUsage(s.config.Store.DatabasePath); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func supportedTypes() []string {
	exts := models.SupportedExtensions()
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		out = append(out, strings.TrimPrefix(e, "."))
	}
	return out
}

func (s *Server) respondUnsupported(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":     "Unsupported file type",
		"supported": supportedTypes(),
	})
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireIngester(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if models.SourceTypeFromFilename(name) == models.SourceTypeUnknown {
		s.respondUnsupported(w)
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.logger.Debug("ingest upload", zap.String("file", name), zap.Int("bytes", len(content)))
	out, err := s.deps.Ingester.IngestBuffer(r.Context(), content, name)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFileType) {
			s.respondUnsupported(w)
			return
		}
		s.logger.Error("ingest failed", zap.String("file", name), zap.Error(err))
		s.respondFailure(w, "Failed to ingest document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ingestResult(out))
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	if !s.requireIngester(w) {
		return
	}
	var req models.TextIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ingest text", zap.String("source", req.Source), zap.Int("bytes", len(req.Content)))
	out, err := s.deps.Ingester.IngestText(r.Context(), req)
	if err != nil {
		s.logger.Error("ingest text failed", zap.String("source", req.Source), zap.Error(err))
		s.respondFailure(w, "Failed to ingest text", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"source":     out.Source,
		"chunks":     out.Chunks,
		"characters": out.Characters,
	})
}

func ingestResult(out ingest.Outcome) models.IngestResult {
	return models.IngestResult{
		Success:    true,
		Source:     out.Source,
		Type:       out.Type,
		Chunks:     out.Chunks,
		Characters: out.Characters,
	}
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q models.RetrieveQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := q.Validate(s.deps.Retriever.TopK(), s.deps.Retriever.Threshold(), s.config.Retrieval.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", q.Query), zap.Int("top_k", q.TopK))
	contexts, err := s.deps.Retriever.Retrieve(r.Context(), q.Query, q.TopK, *q.Threshold)
	if err != nil {
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Context unavailable",
			"message": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, models.RetrieveResponse{
		Query:   q.Query,
		Context: contexts,
		Prompt:  s.deps.Assembler.Assemble(contexts, q.Query),
	})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	sources, err := s.deps.Store.ListSources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []models.SourceInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if !s.requireIngester(w) {
		return
	}
	source, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || strings.TrimSpace(source) == "" {
		s.respondError(w, http.StatusBadRequest, "source is required")
		return
	}
	s.logger.Debug("delete source request", zap.String("source", source))
	n, err := s.deps.Ingester.DeleteSource(r.Context(), source)
	if err != nil {
		s.logger.Error("delete source failed", zap.String("source", source), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"source": source, "deleted": n})
}

func (s *Server) handleClearChunks(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		s.respondError(w, http.StatusBadRequest, "clearing all chunks requires confirm=true")
		return
	}
	n, err := s.deps.Store.ClearAll(r.Context())
	if err != nil {
		s.logger.Error("clear chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("cleared all chunks", zap.Int64("deleted", n))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

// requireStore answers 503 when the server started without a document store.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.deps.Store != nil {
		return true
	}
	s.respondUnavailable(w)
	return false
}

func (s *Server) requireIngester(w http.ResponseWriter) bool {
	if s.deps.Ingester != nil && s.deps.Store != nil {
		return true
	}
	s.respondUnavailable(w)
	return false
}

func (s *Server) respondUnavailable(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":   "Document store unavailable",
		"message": rag.ErrNoStore.Error(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondFailure(w http.ResponseWriter, message string, err error) {
	s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": message, "message": err.Error()})
}
