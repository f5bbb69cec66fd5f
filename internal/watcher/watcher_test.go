package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/stemrag/internal/ingest"
)

type recordingHandler struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
}

func (h *recordingHandler) IngestFile(_ context.Context, path string) (ingest.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ingested = append(h.ingested, path)
	return ingest.Outcome{Source: filepath.Base(path), Path: path, State: ingest.StateStored, Chunks: 1}, nil
}

func (h *recordingHandler) IngestFiles(ctx context.Context, paths []string) ingest.Summary {
	sum := ingest.Summary{Files: len(paths)}
	for _, p := range paths {
		out, _ := h.IngestFile(ctx, p)
		sum.Outcomes = append(sum.Outcomes, out)
		sum.Succeeded++
	}
	return sum
}

func (h *recordingHandler) DeleteFile(_ context.Context, path string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, path)
	return 1, nil
}

func (h *recordingHandler) snapshot() (ingested, deleted []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ingested...), append([]string(nil), h.deleted...)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, root string, h Handler, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)
	w := New(root, h, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w
}

func TestWatcher_debouncesWritesAndFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, dir, h)

	doc := filepath.Join(dir, "hours.txt")
	for i := 0; i < 3; i++ {
		if err := writeFile(doc, strings.Repeat("open ", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "notes.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, ".draft.md"), "hidden"); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		ingested, _ := h.snapshot()
		return len(ingested) >= 1
	})
	// Let any stray timers fire before checking.
	time.Sleep(200 * time.Millisecond)
	ingested, _ := h.snapshot()
	if len(ingested) != 1 || ingested[0] != doc {
		t.Errorf("ingested = %v, want only %s once", ingested, doc)
	}
}

func TestWatcher_removeDeletesChunks(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "faq.md")
	if err := writeFile(doc, "# FAQ"); err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{}
	startWatcher(t, dir, h)

	if err := os.Remove(doc); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		_, deleted := h.snapshot()
		return len(deleted) == 1 && deleted[0] == doc
	})
}

func TestWatcher_Sync(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.md", "ignore.xyz", ".hidden.txt"} {
		if err := writeFile(filepath.Join(dir, name), "content"); err != nil {
			t.Fatal(err)
		}
	}
	if err := mkdirAll(filepath.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "sub", "c.txt"), "nested"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{name: "top level", recursive: false, want: []string{"a.txt", "b.md"}},
		{name: "recursive", recursive: true, want: []string{"a.txt", "b.md", "c.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			w := New(dir, h, WithRecursive(tt.recursive))
			sum := w.Sync(context.Background())
			if sum.Files != len(tt.want) {
				t.Errorf("Files = %d, want %d", sum.Files, len(tt.want))
			}
			ingested, _ := h.snapshot()
			var got []string
			for _, p := range ingested {
				got = append(got, filepath.Base(p))
			}
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ingested %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, root, &recordingHandler{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_newDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, dir, h, WithRecursive(true))

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(nested, "deep.txt")
	if err := writeFile(deep, "deep content"); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		ingested, _ := h.snapshot()
		for _, p := range ingested {
			if p == deep {
				return true
			}
		}
		return false
	})
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), &recordingHandler{})
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", false},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/a/sub/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

// blockingHandler holds each IngestFile until release is closed and records
// how many ran at once.
type blockingHandler struct {
	recordingHandler
	started chan string
	release chan struct{}

	trackMu     sync.Mutex
	inflight    int
	maxInflight int
	ctxErrs     []error
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{started: make(chan string, 8), release: make(chan struct{})}
}

func (h *blockingHandler) IngestFile(ctx context.Context, path string) (ingest.Outcome, error) {
	h.trackMu.Lock()
	h.inflight++
	if h.inflight > h.maxInflight {
		h.maxInflight = h.inflight
	}
	h.trackMu.Unlock()

	h.started <- path
	<-h.release

	h.trackMu.Lock()
	h.inflight--
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	h.trackMu.Unlock()
	return h.recordingHandler.IngestFile(ctx, path)
}

func (h *blockingHandler) stats() (maxInflight int, ctxErrs []error) {
	h.trackMu.Lock()
	defer h.trackMu.Unlock()
	return h.maxInflight, append([]error(nil), h.ctxErrs...)
}

func waitStarted(t *testing.T, h *blockingHandler) {
	t.Helper()
	select {
	case <-h.started:
	case <-time.After(3 * time.Second):
		t.Fatal("ingest did not start")
	}
}

func TestWatcher_serializesOverlappingIngestsOfOnePath(t *testing.T) {
	dir := t.TempDir()
	h := newBlockingHandler()
	startWatcher(t, dir, h)

	doc := filepath.Join(dir, "hours.txt")
	if err := writeFile(doc, "open 9 to 5"); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, h)

	// Second write lands after the first debounce already fired.
	if err := writeFile(doc, "open 10 to 6"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)
	select {
	case <-h.started:
		t.Fatal("second ingest started while the first was still running")
	default:
	}

	close(h.release)
	eventually(t, func() bool {
		ingested, _ := h.snapshot()
		return len(ingested) >= 2
	})
	if maxInflight, _ := h.stats(); maxInflight != 1 {
		t.Errorf("max concurrent ingests of one path = %d, want 1", maxInflight)
	}
}

func TestWatcher_ingestSurvivesShutdown(t *testing.T) {
	dir := t.TempDir()
	h := newBlockingHandler()
	w := New(dir, h, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)

	if err := writeFile(filepath.Join(dir, "hours.txt"), "open daily"); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, h)
	cancel()
	close(h.release)

	eventually(t, func() bool {
		ingested, _ := h.snapshot()
		return len(ingested) == 1
	})
	_, errs := h.stats()
	if len(errs) != 1 || errs[0] != nil {
		t.Errorf("in-flight ingest saw a canceled context: %v", errs)
	}
}

func TestLockPath_releasesEntries(t *testing.T) {
	w := New(t.TempDir(), &recordingHandler{})
	unlock := w.lockPath("a.txt")

	acquired := make(chan struct{})
	go func() {
		u := w.lockPath("a.txt")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
	eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.locks) == 0
	})
}
