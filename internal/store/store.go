// Package store persists chunk records with their embeddings and answers
// similarity searches over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/models"
)

var (
	// ErrStoreWrite is returned when an insert or delete is rejected.
	ErrStoreWrite = errors.New("store write failed")
	// ErrStoreRead is returned when a search or count fails.
	ErrStoreRead = errors.New("store read failed")
)

// Store defines chunk persistence and similarity search.
type Store interface {
	// Insert writes all chunks or none. Missing ids are generated and
	// CreatedAt is stamped on each chunk.
	Insert(ctx context.Context, chunks []*models.Chunk) error
	// DeleteBySource removes every chunk of sourceFile. Deleting an unknown
	// source succeeds with zero rows.
	DeleteBySource(ctx context.Context, sourceFile string) (int64, error)
	// ClearAll removes every chunk. Only used by explicit operator action.
	ClearAll(ctx context.Context) (int64, error)
	// Search returns up to count matches with similarity >= threshold,
	// most similar first. Similarity is 1 - cosine distance.
	Search(ctx context.Context, query []float32, threshold float64, count int) ([]models.Match, error)
	CountAll(ctx context.Context) (int64, error)
	ListSources(ctx context.Context) ([]models.SourceInfo, error)
	Ping(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func writeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreWrite, op, err)
}

func readError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreRead, op, err)
}

// prepare validates a batch before it is written and assigns ids and
// timestamps. All embeddings in the batch must share one dimension.
func prepare(chunks []*models.Chunk, now time.Time) error {
	dim := 0
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("chunk %d is nil", i)
		}
		if strings.TrimSpace(c.Content) == "" {
			return fmt.Errorf("chunk %d of %q has empty content", c.ChunkIndex, c.SourceFile)
		}
		if c.SourceFile == "" {
			return fmt.Errorf("chunk %d has no source file", i)
		}
		if c.ChunkIndex < 0 {
			return fmt.Errorf("chunk %d of %q has negative index", c.ChunkIndex, c.SourceFile)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of %q has no embedding", c.ChunkIndex, c.SourceFile)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d of %q has dimension %d, batch uses %d", c.ChunkIndex, c.SourceFile, len(c.Embedding), dim)
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
	}
	return nil
}
