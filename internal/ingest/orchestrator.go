// Package ingest drives documents through parse, chunk, embed and store,
// isolating failures per document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/chunker"
	"github.com/hyperjump/stemrag/internal/embedding"
	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/parser"
	"github.com/hyperjump/stemrag/internal/source"
)

// Embedder embeds a batch of texts, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, progress embedding.ProgressFunc) ([][]float32, error)
}

// ChunkStore is the part of the document store ingestion writes to.
type ChunkStore interface {
	Insert(ctx context.Context, chunks []*models.Chunk) error
	DeleteBySource(ctx context.Context, sourceFile string) (int64, error)
}

// Orchestrator ingests documents. Different sources may be ingested
// concurrently; callers must serialize re-ingestion of the same source.
type Orchestrator struct {
	parser  *parser.Parser
	chunker *chunker.Chunker
	embed   Embedder
	store   ChunkStore
	docsDir string
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for per-document outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDocumentsDir sets the directory batch ingestion reads from and file
// labels are relative to.
func WithDocumentsDir(dir string) Option {
	return func(o *Orchestrator) { o.docsDir = dir }
}

// WithClock overrides the ingestion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(p *parser.Parser, c *chunker.Chunker, e Embedder, s ChunkStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		parser:  p,
		chunker: c,
		embed:   e,
		store:   s,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DocumentsDir returns the configured documents directory.
func (o *Orchestrator) DocumentsDir() string {
	return o.docsDir
}

// document is one unit of work for run.
type document struct {
	source   string
	path     string
	typ      models.SourceType
	parse    func() (string, models.SourceType, error)
	metadata map[string]interface{}
}

// IngestFile ingests the file at path. The returned error equals Outcome.Err.
func (o *Orchestrator) IngestFile(ctx context.Context, path string) (Outcome, error) {
	label := source.Label(o.docsDir, path)
	out := o.run(ctx, document{
		source: label,
		path:   path,
		typ:    models.SourceTypeFromFilename(path),
		parse:  func() (string, models.SourceType, error) { return o.parser.ParseFile(path) },
		metadata: map[string]interface{}{
			models.MetaOriginalPath: path,
		},
	})
	return out, out.Err
}

// IngestBuffer ingests an uploaded file. The source label is the base name of filename.
func (o *Orchestrator) IngestBuffer(ctx context.Context, content []byte, filename string) (Outcome, error) {
	label := filepath.Base(filepath.Clean(filename))
	out := o.run(ctx, document{
		source: label,
		typ:    models.SourceTypeFromFilename(label),
		parse:  func() (string, models.SourceType, error) { return o.parser.ParseBytes(content, label) },
	})
	return out, out.Err
}

// IngestText ingests raw text under req.Source. Caller metadata is kept but
// the pipeline's own keys take precedence.
func (o *Orchestrator) IngestText(ctx context.Context, req models.TextIngestRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		out := Outcome{Source: req.Source, Type: models.SourceTypeText, State: StateFailed, Err: err}
		return out, err
	}
	meta := make(map[string]interface{}, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	content := req.Content
	out := o.run(ctx, document{
		source:   strings.TrimSpace(req.Source),
		typ:      models.SourceTypeText,
		parse:    func() (string, models.SourceType, error) { return content, models.SourceTypeText, nil },
		metadata: meta,
	})
	return out, out.Err
}

// DeleteSource removes every chunk stored for label.
func (o *Orchestrator) DeleteSource(ctx context.Context, label string) (int64, error) {
	n, err := o.store.DeleteBySource(ctx, label)
	if err != nil {
		return 0, err
	}
	o.logger.Info("deleted source", zap.String("source", label), zap.Int64("chunks", n))
	return n, nil
}

// DeleteFile removes the chunks of the file at path, labeled as IngestFile would.
func (o *Orchestrator) DeleteFile(ctx context.Context, path string) (int64, error) {
	return o.DeleteSource(ctx, source.Label(o.docsDir, path))
}

func (o *Orchestrator) run(ctx context.Context, doc document) Outcome {
	start := time.Now()
	out := Outcome{Source: doc.source, Path: doc.path, Type: doc.typ, State: StatePending}
	err := o.process(ctx, doc, &out)
	out.Duration = time.Since(start)
	if err != nil {
		out.FailedAt = out.State
		out.State = StateFailed
		out.Err = err
		o.logger.Error("ingestion failed",
			zap.String("source", out.Source),
			zap.String("stage", out.FailedAt.String()),
			zap.Error(err))
		return out
	}
	if out.State == StateSkipped {
		o.logger.Info("skipped empty document", zap.String("source", out.Source))
		return out
	}
	o.logger.Info("ingested document",
		zap.String("source", out.Source),
		zap.String("type", string(out.Type)),
		zap.Int("chunks", out.Chunks),
		zap.Int("characters", out.Characters),
		zap.Duration("duration", out.Duration))
	return out
}

func (o *Orchestrator) process(ctx context.Context, doc document, out *Outcome) error {
	if doc.source == "" {
		return errors.New("source label is empty")
	}
	if doc.typ == models.SourceTypeUnknown {
		return &parser.UnsupportedFileTypeError{Ext: strings.ToLower(filepath.Ext(doc.source))}
	}

	text, typ, err := doc.parse()
	if err != nil {
		return err
	}
	out.Type = typ
	out.State = StateParsed
	if strings.TrimSpace(text) == "" {
		out.State = StateSkipped
		return nil
	}
	out.Characters = utf8.RuneCountInString(text)

	pieces := o.chunker.Chunk(text)
	if len(pieces) == 0 {
		out.Characters = 0
		out.State = StateSkipped
		return nil
	}
	out.State = StateChunked

	vecs, err := o.embed.EmbedBatch(ctx, pieces, func(done, total int) {
		o.logger.Debug("embedding progress", zap.String("source", doc.source), zap.Int("done", done), zap.Int("total", total))
	})
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(pieces) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(pieces))
	}
	out.State = StateEmbedded

	ingestedAt := o.now().UTC().Format(time.RFC3339)
	records := make([]*models.Chunk, len(pieces))
	for i, piece := range pieces {
		meta := make(map[string]interface{}, len(doc.metadata)+3)
		for k, v := range doc.metadata {
			meta[k] = v
		}
		meta[models.MetaOriginalSize] = out.Characters
		meta[models.MetaTotalChunks] = len(pieces)
		meta[models.MetaIngestedAt] = ingestedAt
		records[i] = &models.Chunk{
			Content:    piece,
			Embedding:  vecs[i],
			SourceFile: doc.source,
			SourceType: typ,
			ChunkIndex: i,
			Metadata:   meta,
		}
	}

	// Delete completes before insert starts so stale and new generations never coexist.
	if _, err := o.store.DeleteBySource(ctx, doc.source); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := o.store.Insert(ctx, records); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	out.Chunks = len(records)
	out.State = StateStored
	return nil
}

// IngestFiles ingests paths sequentially. Cancellation is checked between
// documents; the document in progress always finishes.
func (o *Orchestrator) IngestFiles(ctx context.Context, paths []string) Summary {
	start := time.Now()
	sum := Summary{Files: len(paths)}
	for _, p := range paths {
		if ctx.Err() != nil {
			sum.Canceled = true
			o.logger.Warn("ingestion canceled", zap.Int("remaining", len(paths)-len(sum.Outcomes)))
			break
		}
		out, _ := o.IngestFile(context.WithoutCancel(ctx), p)
		sum.add(out)
	}
	sum.Duration = time.Since(start)
	return sum
}

// IngestDirectory ingests every supported top-level file of the documents
// directory, creating the directory if it does not exist.
func (o *Orchestrator) IngestDirectory(ctx context.Context) (Summary, error) {
	files, err := ListDocuments(o.docsDir)
	if err != nil {
		return Summary{}, err
	}
	return o.IngestFiles(ctx, files), nil
}

// ListDocuments creates dir when missing and returns its supported regular
// files, sorted by name. Subdirectories are not descended into.
func ListDocuments(dir string) ([]string, error) {
	if dir == "" {
		return nil, errors.New("documents directory is not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if models.SourceTypeFromFilename(e.Name()) == models.SourceTypeUnknown {
			continue
		}
		path := filepath.Join(dir, e.Name())
		// Resolve symlinks so only regular files are ingested.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
