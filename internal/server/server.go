// Package server provides the HTTP API for ingestion and retrieval.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/config"
	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/rag"
	"github.com/hyperjump/stemrag/internal/store"
)

// Ingester ingests uploads and raw text and removes sources.
type Ingester interface {
	IngestBuffer(ctx context.Context, content []byte, filename string) (ingest.Outcome, error)
	IngestText(ctx context.Context, req models.TextIngestRequest) (ingest.Outcome, error)
	DeleteSource(ctx context.Context, label string) (int64, error)
}

// EmbeddingProber reports embedding backend health.
type EmbeddingProber interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// Dependencies are the components the handlers call.
type Dependencies struct {
	Ingester  Ingester
	Retriever *rag.Retriever
	Assembler *rag.Assembler
	Store     store.Store
	Embedder  EmbeddingProber
}

// Server is the HTTP server for the stemrag API.
type Server struct {
	deps   Dependencies
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies. A nil logger disables logging.
func NewServer(deps Dependencies, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ping", s.handlePing)
		r.Get("/status", s.handleStatus)
		r.Post("/ingest", s.handleIngestFile)
		r.Post("/ingest/text", s.handleIngestText)
		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/sources", s.handleListSources)
		r.Delete("/sources/*", s.handleDeleteSource)
		r.Delete("/chunks", s.handleClearChunks)
	})
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
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
