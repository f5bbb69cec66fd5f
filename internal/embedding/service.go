package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of concurrent requests per batch.
const DefaultBatchSize = 10

// ProgressFunc receives the cumulative number of embedded texts after each batch.
type ProgressFunc func(done, total int)

// Service batches and caches calls to an Embedder backend.
type Service struct {
	backend   Embedder
	batchSize int
	cache     *QueryCache
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBatchSize sets how many texts are embedded concurrently per batch.
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithCache enables caching of single-text embeddings (query time).
func WithCache(c *QueryCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets a logger for batch progress.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wraps backend.
func NewService(backend Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		backend:   backend,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the wrapped backend.
func (s *Service) Backend() Embedder {
	return s.backend
}

// BatchSize returns the configured batch size.
func (s *Service) BatchSize() int {
	return s.batchSize
}

// EmbedOne embeds a single text. Errors wrap ErrBackendUnavailable or ErrEmbeddingFailed.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.cache.Lookup(text); ok {
		return v, nil
	}
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Store(text, vec)
	return vec, nil
}

// CacheStats reports query cache usage. It is zero when caching is off.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.backend.Embed(ctx, text)
	if err != nil {
		return nil, classify(err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: backend returned an empty vector", ErrEmbeddingFailed)
	}
	return vec, nil
}

// EmbedBatch embeds texts in batches of BatchSize, running each batch's requests
// concurrently. out[i] is the embedding of texts[i]. The first failure aborts
// the call and no partial result is returned. progress may be nil.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	total := len(texts)
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}
		g, gCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				vec, err := s.embed(gCtx, texts[i])
				if err != nil {
					return fmt.Errorf("embed text %d: %w", i, err)
				}
				out[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i := start; i < end; i++ {
			if len(out[i]) != len(out[0]) {
				return nil, fmt.Errorf("%w: text %d has dimension %d, expected %d", ErrEmbeddingFailed, i, len(out[i]), len(out[0]))
			}
		}
		if progress != nil {
			progress(end, total)
		}
		if total > s.batchSize {
			s.logger.Info("embedded chunks", zap.Int("done", end), zap.Int("total", total))
		}
	}
	return out, nil
}

// Dimension embeds ProbeText and returns the vector length. It is not cached so
// a backend or model change is always observed.
func (s *Service) Dimension(ctx context.Context) (int, error) {
	vec, err := s.embed(ctx, ProbeText)
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

// Ping checks backend reachability when the backend supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ListModels returns the backend's installed models, or nil when the backend
// has no model catalog.
func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	if l, ok := s.backend.(ModelLister); ok {
		return l.ListModels(ctx)
	}
	return nil, nil
}

// Close closes the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}
