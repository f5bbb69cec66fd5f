// Package models defines the chunk record, retrieved context, and request shapes
// shared by ingestion, storage, and retrieval.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceType identifies how a chunk's source was ingested.
type SourceType string

const (
	SourceTypePDF      SourceType = "pdf"
	SourceTypeMarkdown SourceType = "markdown"
	SourceTypeTxt      SourceType = "txt"
	// SourceTypeText marks content submitted directly as text rather than a file.
	SourceTypeText SourceType = "text"
	// SourceTypeUnknown is returned for extensions no parser handles.
	SourceTypeUnknown SourceType = "unknown"
)

// SourceTypeFromFilename maps a filename's extension to a SourceType.
func SourceTypeFromFilename(name string) SourceType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return SourceTypePDF
	case ".md", ".markdown":
		return SourceTypeMarkdown
	case ".txt", ".text":
		return SourceTypeTxt
	default:
		return SourceTypeUnknown
	}
}

// SupportedExtensions lists the file extensions accepted for ingestion.
func SupportedExtensions() []string {
	return []string{".pdf", ".md", ".markdown", ".txt", ".text"}
}

// Chunk is a persisted segment of a source with its embedding.
type Chunk struct {
	ID         string                 `json:"id" db:"id"`
	Content    string                 `json:"content" db:"content"`
	Embedding  []float32              `json:"-" db:"embedding"`
	SourceFile string                 `json:"source_file" db:"source_file"`
	SourceType SourceType             `json:"source_type" db:"source_type"`
	ChunkIndex int                    `json:"chunk_index" db:"chunk_index"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// Metadata keys written by the ingestion pipeline.
const (
	MetaOriginalPath = "originalPath"
	MetaOriginalSize = "originalSize"
	MetaTotalChunks  = "totalChunks"
	MetaIngestedAt   = "ingestedAt"
)
