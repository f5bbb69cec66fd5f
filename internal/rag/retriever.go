// Package rag fetches context for a query and assembles it into the prompt
// for the generation step.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/models"
)

// Default retrieval parameters.
const (
	DefaultTopK      = 3
	DefaultThreshold = 0.5
	MaxTopK          = 50
)

// ErrContextUnavailable is returned by Retrieve in strict mode when the
// embedding backend or the store fails.
var ErrContextUnavailable = errors.New("context unavailable")

// ErrNoStore is returned when the retriever has no document store to search.
var ErrNoStore = errors.New("document store is not configured")

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search.
type Searcher interface {
	Search(ctx context.Context, query []float32, threshold float64, count int) ([]models.Match, error)
}

// Retriever embeds a query, searches the store and maps matches to
// RetrievedContext records.
type Retriever struct {
	embedder  QueryEmbedder
	searcher  Searcher
	topK      int
	threshold float64
	strict    bool
	logger    *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithTopK sets the default result count.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithThreshold sets the default similarity threshold.
func WithThreshold(t float64) RetrieverOption {
	return func(r *Retriever) {
		r.threshold = t
	}
}

// WithStrict makes Retrieve report failures instead of returning no context.
func WithStrict(strict bool) RetrieverOption {
	return func(r *Retriever) {
		r.strict = strict
	}
}

// WithLogger sets the logger used to report swallowed failures.
func WithLogger(logger *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder QueryEmbedder, searcher Searcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:  embedder,
		searcher:  searcher,
		topK:      DefaultTopK,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopK returns the default result count.
func (r *Retriever) TopK() int { return r.topK }

// Threshold returns the default similarity threshold.
func (r *Retriever) Threshold() float64 { return r.threshold }

// Strict reports whether failures are returned to the caller.
func (r *Retriever) Strict() bool { return r.strict }

// Retrieve returns up to topK contexts with similarity >= threshold, most
// similar first. topK <= 0 uses the default. Failures yield an empty result
// and a nil error unless the retriever is strict, in which case the error
// wraps ErrContextUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]models.RetrievedContext, error) {
	out, err := r.retrieve(ctx, query, topK, threshold)
	if err == nil {
		return out, nil
	}
	r.logger.Warn("retrieval failed", zap.String("query", query), zap.Error(err))
	if r.strict {
		return nil, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}
	return []models.RetrievedContext{}, nil
}

// RetrieveContext is Retrieve with default parameters that never fails.
func (r *Retriever) RetrieveContext(ctx context.Context, query string) []models.RetrievedContext {
	out, err := r.retrieve(ctx, query, r.topK, r.threshold)
	if err != nil {
		r.logger.Warn("retrieval failed", zap.String("query", query), zap.Error(err))
		return []models.RetrievedContext{}
	}
	return out
}

func (r *Retriever) retrieve(ctx context.Context, query string, topK int, threshold float64) ([]models.RetrievedContext, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.RetrievedContext{}, nil
	}
	if topK <= 0 {
		topK = r.topK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if r.searcher == nil {
		return nil, ErrNoStore
	}
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.searcher.Search(ctx, vec, threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]models.RetrievedContext, 0, len(matches))
	for _, m := range matches {
		// Stores already filter; this keeps the guarantee independent of the backend.
		if m.Similarity < threshold {
			continue
		}
		out = append(out, models.RetrievedContext{
			Content:    m.Content,
			Source:     m.SourceFile,
			Similarity: m.Similarity,
		})
		if len(out) == topK {
			break
		}
	}
	r.logger.Debug("retrieved context", zap.Int("results", len(out)), zap.Int("top_k", topK), zap.Float64("threshold", threshold))
	return out, nil
}
