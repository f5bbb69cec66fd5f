package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps chunks in a pgvector table and searches through the
// search_documents SQL function.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *zap.Logger
}

// NewPostgresStore connects to dsn and creates the pgvector extension, the
// document_chunks table sized for dimension, its indexes and the
// search_documents function when they are missing.
func NewPostgresStore(ctx context.Context, dsn string, dimension int, opts ...Option) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	o := applyOptions(opts)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dimension: dimension, logger: o.logger}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	o.logger.Info("postgres store ready", zap.Int("dimension", s.dimension))
	return s, nil
}

// tableDimensionQuery reads the declared width of document_chunks.embedding.
// pgvector stores the dimension directly as the type modifier.
const tableDimensionQuery = `SELECT atttypmod FROM pg_attribute
	WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding'`

// tableStatements create the extension and the chunk table sized for
// dimension. An existing table keeps its width.
func tableStatements(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			source_file TEXT NOT NULL,
			source_type TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (source_file, chunk_index)
		)`, dimension),
	}
}

// searchStatements create the indexes and search_documents for a table of
// the given width.
func searchStatements(dimension int) []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_source_file ON document_chunks (source_file)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION search_documents(
			query_embedding vector(%d),
			match_threshold float,
			match_count int
		)
		RETURNS TABLE (
			id text,
			content text,
			source_file text,
			source_type text,
			chunk_index integer,
			metadata jsonb,
			similarity float
		)
		LANGUAGE sql STABLE
		AS $$
			SELECT d.id, d.content, d.source_file, d.source_type, d.chunk_index, d.metadata,
				1 - (d.embedding <=> query_embedding) AS similarity
			FROM document_chunks d
			WHERE 1 - (d.embedding <=> query_embedding) >= match_threshold
			ORDER BY d.embedding <=> query_embedding, d.source_file, d.chunk_index
			LIMIT match_count;
		$$`, dimension),
	}
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if err := s.exec(ctx, tableStatements(s.dimension)); err != nil {
		return err
	}
	var typmod int
	if err := s.pool.QueryRow(ctx, tableDimensionQuery).Scan(&typmod); err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if dim, changed := reconcileDimension(s.dimension, typmod); changed {
		s.logger.Warn("existing document_chunks table has a different embedding dimension, using it",
			zap.Int("requested", s.dimension), zap.Int("table", dim))
		s.dimension = dim
	}
	return s.exec(ctx, searchStatements(s.dimension))
}

func (s *PostgresStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// reconcileDimension picks the width to use given the requested one and the
// table's type modifier. A non-positive modifier means the column has no
// declared width, so the request stands.
func reconcileDimension(requested, typmod int) (int, bool) {
	if typmod <= 0 || typmod == requested {
		return requested, false
	}
	return typmod, true
}

// Dimension returns the embedding width the table was created with.
func (s *PostgresStore) Dimension() int {
	return s.dimension
}

// Insert writes chunks in one transaction.
func (s *PostgresStore) Insert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := prepare(chunks, time.Now()); err != nil {
		return writeError("insert", err)
	}
	if got := len(chunks[0].Embedding); got != s.dimension {
		return writeError("insert", fmt.Errorf("embedding dimension %d does not match table dimension %d", got, s.dimension))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return writeError("begin", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO document_chunks (id, content, embedding, source_file, source_type, chunk_index, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	for _, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return writeError("insert", fmt.Errorf("failed to marshal metadata: %w", err))
		}
		if _, err := tx.Exec(ctx, insertSQL,
			c.ID, c.Content, pgvector.NewVector(c.Embedding), c.SourceFile, string(c.SourceType),
			c.ChunkIndex, metaBytes, c.CreatedAt,
		); err != nil {
			return writeError(fmt.Sprintf("insert chunk %d of %q", c.ChunkIndex, c.SourceFile), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return writeError("commit", err)
	}
	return nil
}

// DeleteBySource removes all chunks for sourceFile.
func (s *PostgresStore) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE source_file = $1`, sourceFile)
	if err != nil {
		return 0, writeError("delete source", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAll removes every chunk.
func (s *PostgresStore) ClearAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM document_chunks`)
	if err != nil {
		return 0, writeError("clear", err)
	}
	return tag.RowsAffected(), nil
}

// Search calls search_documents.
func (s *PostgresStore) Search(ctx context.Context, query []float32, threshold float64, count int) ([]models.Match, error) {
	if count <= 0 || len(query) == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, readError("search", fmt.Errorf("query dimension %d does not match table dimension %d", len(query), s.dimension))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, source_file, source_type, chunk_index, metadata, similarity
		 FROM search_documents($1, $2, $3)`,
		pgvector.NewVector(query), threshold, count,
	)
	if err != nil {
		return nil, readError("search", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m          models.Match
			sourceType string
			metaBytes  []byte
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.SourceFile, &sourceType, &m.ChunkIndex, &metaBytes, &m.Similarity); err != nil {
			return nil, readError("scan", err)
		}
		m.SourceType = models.SourceType(sourceType)
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &m.Metadata)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("search", err)
	}
	return matches, nil
}

// CountAll returns the total number of chunks.
func (s *PostgresStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, readError("count", err)
	}
	return count, nil
}

// ListSources returns chunk counts grouped by source, ordered by name.
func (s *PostgresStore) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_file, MIN(source_type), COUNT(*)
		 FROM document_chunks GROUP BY source_file ORDER BY source_file`,
	)
	if err != nil {
		return nil, readError("list sources", err)
	}
	defer rows.Close()

	var out []models.SourceInfo
	for rows.Next() {
		var info models.SourceInfo
		var sourceType string
		if err := rows.Scan(&info.SourceFile, &sourceType, &info.Chunks); err != nil {
			return nil, readError("scan source", err)
		}
		info.SourceType = models.SourceType(sourceType)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("list sources", err)
	}
	return out, nil
}

// Ping checks the pool can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return readError("ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
