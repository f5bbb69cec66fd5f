package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/chunker"
	"github.com/hyperjump/stemrag/internal/config"
	"github.com/hyperjump/stemrag/internal/embedding"
	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/parser"
	"github.com/hyperjump/stemrag/internal/rag"
	"github.com/hyperjump/stemrag/internal/store"
)

// Components holds initialized services.
type Components struct {
	Embeddings   *embedding.Service
	Store        store.Store
	Orchestrator *ingest.Orchestrator
	Retriever    *rag.Retriever
	Assembler    *rag.Assembler
}

// Close releases the store and the embedding backend.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embeddings != nil {
		_ = c.Embeddings.Close()
	}
}

func newEmbeddingService(cfg *config.Config, logger *zap.Logger) (*embedding.Service, error) {
	backend, err := embedding.New(embedding.BackendConfig{
		Backend:           cfg.Embedding.Backend,
		Host:              cfg.Ollama.Host,
		Model:             cfg.Embedding.Model,
		Timeout:           cfg.Ollama.Timeout,
		RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
		ModelPath:         cfg.Embedding.ModelPath,
		Dimensions:        cfg.Embedding.Dimensions,
		MaxTokens:         cfg.Embedding.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding backend: %w", err)
	}
	return embedding.NewService(backend,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithCache(embedding.NewQueryCache(cfg.Embedding.CacheSizeOrDefault())),
		embedding.WithLogger(logger),
	), nil
}

func openStore(ctx context.Context, cfg *config.Config, dimension int, logger *zap.Logger) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Backend:   cfg.Store.Backend,
		Path:      cfg.Store.DatabasePath,
		DSN:       cfg.Store.DatabaseURL,
		Dimension: dimension,
	}, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

// storeDimension returns the dimension used to size a new Postgres schema.
// Other backends do not need one, so the embedder is only probed for Postgres.
func storeDimension(ctx context.Context, cfg *config.Config, svc *embedding.Service, logger *zap.Logger) int {
	if cfg.Store.Backend != store.BackendPostgres {
		return 0
	}
	dim, err := svc.Dimension(ctx)
	if err != nil {
		logger.Warn("embedding dimension probe failed, using configured dimensions",
			zap.Int("dimensions", cfg.Embedding.Dimensions), zap.Error(err))
		return cfg.Embedding.Dimensions
	}
	return dim
}

// initializeComponents wires the pipeline. When st is nil the store is opened here.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, svc *embedding.Service, st store.Store) (*Components, error) {
	if svc == nil {
		var err error
		if svc, err = newEmbeddingService(cfg, logger); err != nil {
			return nil, err
		}
	}
	if st == nil {
		var err error
		if st, err = openStore(ctx, cfg, storeDimension(ctx, cfg, svc, logger), logger); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return buildComponents(cfg, logger, svc, st)
}

// initializeServerComponents is initializeComponents for the HTTP server. A
// store that cannot be opened leaves Store and Orchestrator nil so the
// server can still start and report itself degraded.
func initializeServerComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	svc, err := newEmbeddingService(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, storeDimension(ctx, cfg, svc, logger), logger)
	if err != nil {
		logger.Warn("document store unavailable, retrieval will return no context", zap.Error(err))
		st = nil
	}
	return buildComponents(cfg, logger, svc, st)
}

func buildComponents(cfg *config.Config, logger *zap.Logger, svc *embedding.Service, st store.Store) (*Components, error) {
	c := &Components{Embeddings: svc, Store: st}

	chk, err := chunker.NewChunker(cfg.Chunking.Options())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid chunking settings: %w", err)
	}
	var searcher rag.Searcher
	if st != nil {
		c.Orchestrator = ingest.NewOrchestrator(parser.NewParser(), chk, svc, st,
			ingest.WithLogger(logger),
			ingest.WithDocumentsDir(cfg.Documents.Directory),
		)
		searcher = st
	}
	c.Retriever = rag.NewRetriever(svc, searcher,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithThreshold(cfg.Retrieval.ThresholdOrDefault()),
		rag.WithStrict(cfg.Retrieval.Strict),
		rag.WithLogger(logger),
	)

	base, err := rag.LoadSystemPrompt(cfg.Retrieval.SystemPromptFile)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Assembler = rag.NewAssembler(base, rag.WithMaxContextChars(cfg.Retrieval.MaxContextChars))
	return c, nil
}
