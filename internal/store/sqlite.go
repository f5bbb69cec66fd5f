package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/vector"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps chunks in a single SQLite file. Search is exact cosine
// similarity over every stored embedding.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := applyOptions(opts)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	o.logger.Debug("sqlite store opened", zap.String("path", dbPath))
	return &SQLiteStore{db: db, path: dbPath, logger: o.logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		source_file TEXT NOT NULL,
		source_type TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (source_file, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_file ON document_chunks(source_file);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Insert writes chunks in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := prepare(chunks, time.Now()); err != nil {
		return writeError("insert", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, content, embedding, source_file, source_type, chunk_index, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return writeError("prepare insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return writeError("insert", fmt.Errorf("failed to marshal metadata: %w", err))
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Content, vector.Encode(c.Embedding), c.SourceFile, string(c.SourceType),
			c.ChunkIndex, string(metadataJSON), c.CreatedAt, c.CreatedAt,
		); err != nil {
			return writeError(fmt.Sprintf("insert chunk %d of %q", c.ChunkIndex, c.SourceFile), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return writeError("commit", err)
	}
	return nil
}

// DeleteBySource removes all chunks for sourceFile.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE source_file = ?`, sourceFile)
	if err != nil {
		return 0, writeError("delete source", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ClearAll removes every chunk.
func (s *SQLiteStore) ClearAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks`)
	if err != nil {
		return 0, writeError("clear", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Search scans all rows and scores them against query.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, threshold float64, count int) ([]models.Match, error) {
	if count <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, source_file, source_type, chunk_index, metadata
		 FROM document_chunks`,
	)
	if err != nil {
		return nil, readError("search", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m            models.Match
			blob         []byte
			sourceType   string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Content, &blob, &m.SourceFile, &sourceType, &m.ChunkIndex, &metadataJSON); err != nil {
			return nil, readError("scan", err)
		}
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, readError("decode embedding", err)
		}
		if len(emb) != len(query) {
			s.logger.Debug("skipping chunk with mismatched dimension",
				zap.String("source", m.SourceFile), zap.Int("chunk", m.ChunkIndex), zap.Int("dim", len(emb)))
			continue
		}
		m.SourceType = models.SourceType(sourceType)
		m.Similarity = vector.CosineSimilarity(query, emb)
		if m.Similarity < threshold {
			continue
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &m.Metadata)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("search", err)
	}
	return rank(matches, threshold, count), nil
}

// CountAll returns the total number of chunks.
func (s *SQLiteStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, readError("count", err)
	}
	return count, nil
}

// ListSources returns chunk counts grouped by source, ordered by name.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_file, MIN(source_type), COUNT(*)
		 FROM document_chunks GROUP BY source_file`,
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
	sort.Slice(out, func(i, j int) bool { return out[i].SourceFile < out[j].SourceFile })
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return readError("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
