// Package watcher re-ingests documents when files in the documents directory
// change, using fsnotify with per-file debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/models"
)

const defaultDebounce = 500 * time.Millisecond

// Handler receives debounced file changes. The ingestion orchestrator satisfies it.
type Handler interface {
	IngestFile(ctx context.Context, path string) (ingest.Outcome, error)
	IngestFiles(ctx context.Context, paths []string) ingest.Summary
	DeleteFile(ctx context.Context, path string) (int64, error)
}

// Watcher watches one documents directory.
type Watcher struct {
	root       string
	extensions []string
	recursive  bool
	debounce   time.Duration
	handler    Handler
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	locks   map[string]*pathLock
	ctx     context.Context
	wg      sync.WaitGroup
	done    chan struct{}
	started bool
	stopped sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period after the last write before a file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRecursive also watches subdirectories, including ones created later.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithExtensions overrides the accepted file extensions.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// New returns a watcher for root that forwards changes to h. The directory
// is created on Start if it does not exist.
func New(root string, h Handler, opts ...Option) *Watcher {
	w := &Watcher{
		root:       filepath.Clean(root),
		extensions: models.SupportedExtensions(),
		debounce:   defaultDebounce,
		handler:    h,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		locks:      make(map[string]*pathLock),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}
	w.ctx = ctx
	w.started = true
	w.logger.Info("watching documents directory",
		zap.String("dir", w.root),
		zap.Bool("recursive", w.recursive),
		zap.Duration("debounce", w.debounce))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) addTreeLocked(dir string) error {
	if !w.recursive {
		return w.fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !inDir(w.root, path) || hidden(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if info.Mode().IsRegular() && w.accepts(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.accepts(path) {
			w.remove(path)
		}
	}
}

func (w *Watcher) handleNewDirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	if w.fsw != nil {
		if err := w.addTreeLocked(dir); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	w.mu.Unlock()
	// Files copied in with the directory produce no events of their own.
	for _, path := range w.listFiles(dir) {
		w.schedule(path)
	}
}

func (w *Watcher) accepts(path string) bool {
	return matchExtension(path, w.extensions)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		active := w.started
		if active {
			w.wg.Add(1)
		}
		w.mu.Unlock()
		if !active {
			return
		}
		defer w.wg.Done()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// pathLock serializes handler calls for one path. refs counts holders and
// waiters so the entry can be dropped when nobody needs it.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

// lockPath blocks until no other ingest or delete of path is running and
// returns the matching unlock.
func (w *Watcher) lockPath(path string) func() {
	w.mu.Lock()
	l, ok := w.locks[path]
	if !ok {
		l = &pathLock{}
		w.locks[path] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, path)
		}
		w.mu.Unlock()
	}
}

// ingest re-ingests path. The delete-then-insert inside IngestFile is not
// interrupted by shutdown, so a source is never left half replaced.
func (w *Watcher) ingest(ctx context.Context, path string) {
	unlock := w.lockPath(path)
	defer unlock()
	out, err := w.handler.IngestFile(context.WithoutCancel(ctx), path)
	if err != nil {
		w.logger.Warn("re-ingest failed", zap.String("file", out.Source), zap.Error(err))
		return
	}
	w.logger.Info("re-ingested document",
		zap.String("file", out.Source),
		zap.String("state", out.State.String()),
		zap.Int("chunks", out.Chunks))
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return
	}
	unlock := w.lockPath(path)
	defer unlock()
	n, err := w.handler.DeleteFile(context.WithoutCancel(ctx), path)
	if err != nil {
		w.logger.Warn("failed to remove chunks", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("removed document", zap.String("path", path), zap.Int64("chunks", n))
}

// Sync ingests every matching file already under the root. Use it after
// Start to pick up files that changed while nothing was watching.
func (w *Watcher) Sync(ctx context.Context) ingest.Summary {
	return w.handler.IngestFiles(ctx, w.listFiles(w.root))
}

func (w *Watcher) listFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (!w.recursive || hidden(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !hidden(path) && w.accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// Stop stops watching, cancels pending ingests and waits for running ones.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopped.Do(func() { close(w.done) })
	w.wg.Wait()
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
