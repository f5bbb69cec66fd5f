package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/vector"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory store using brute-force cosine search.
// Suitable for tests and throwaway sessions; nothing is persisted.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []*models.Chunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert validates the whole batch before appending any of it.
func (m *MemoryStore) Insert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return writeError("insert", err)
	}
	if err := prepare(chunks, time.Now()); err != nil {
		return writeError("insert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct {
		source string
		index  int
	}
	taken := make(map[key]bool, len(m.chunks)+len(chunks))
	for _, c := range m.chunks {
		taken[key{c.SourceFile, c.ChunkIndex}] = true
	}
	for _, c := range chunks {
		k := key{c.SourceFile, c.ChunkIndex}
		if taken[k] {
			return writeError("insert", fmt.Errorf("chunk %d of %q already exists", c.ChunkIndex, c.SourceFile))
		}
		taken[k] = true
	}
	for _, c := range chunks {
		cp := *c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		m.chunks = append(m.chunks, &cp)
	}
	return nil
}

// DeleteBySource removes all chunks for sourceFile.
func (m *MemoryStore) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	return m.remove(func(c *models.Chunk) bool { return c.SourceFile == sourceFile }), nil
}

// ClearAll removes every chunk.
func (m *MemoryStore) ClearAll(ctx context.Context) (int64, error) {
	return m.remove(func(*models.Chunk) bool { return true }), nil
}

func (m *MemoryStore) remove(match func(*models.Chunk) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]*models.Chunk, 0, len(m.chunks))
	var n int64
	for _, c := range m.chunks {
		if match(c) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return n
}

// Search scores every chunk against query.
func (m *MemoryStore) Search(ctx context.Context, query []float32, threshold float64, count int) ([]models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, readError("search", err)
	}
	if count <= 0 || len(query) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]models.Match, 0, len(m.chunks))
	for _, c := range m.chunks {
		if len(c.Embedding) != len(query) {
			continue
		}
		matches = append(matches, models.Match{
			ID:         c.ID,
			Content:    c.Content,
			SourceFile: c.SourceFile,
			SourceType: c.SourceType,
			ChunkIndex: c.ChunkIndex,
			Metadata:   c.Metadata,
			Similarity: vector.CosineSimilarity(query, c.Embedding),
		})
	}
	return rank(matches, threshold, count), nil
}

// CountAll returns the number of chunks held.
func (m *MemoryStore) CountAll(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.chunks)), nil
}

// ListSources returns chunk counts grouped by source, ordered by name.
func (m *MemoryStore) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySource := make(map[string]*models.SourceInfo)
	for _, c := range m.chunks {
		info, ok := bySource[c.SourceFile]
		if !ok {
			info = &models.SourceInfo{SourceFile: c.SourceFile, SourceType: c.SourceType}
			bySource[c.SourceFile] = info
		}
		info.Chunks++
	}
	out := make([]models.SourceInfo, 0, len(bySource))
	for _, info := range bySource {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceFile < out[j].SourceFile })
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
