package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/stemrag/internal/chunker"
	"github.com/hyperjump/stemrag/internal/config"
	"github.com/hyperjump/stemrag/internal/embedding"
	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/parser"
	"github.com/hyperjump/stemrag/internal/rag"
	"github.com/hyperjump/stemrag/internal/store"
)

type downEmbedder struct{}

func (downEmbedder) Ping(context.Context) error {
	return embedding.ErrBackendUnavailable
}

func (downEmbedder) ListModels(context.Context) ([]string, error) {
	return nil, embedding.ErrBackendUnavailable
}

type testEnv struct {
	handler http.Handler
	store   *store.MemoryStore
	server  *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Backend = "mock"
	cfg.Store.Backend = store.BackendMemory

	st := store.NewMemoryStore()
	svc := embedding.NewService(embedding.NewMockEmbedder(16))
	c, err := chunker.NewChunker(cfg.Chunking.Options())
	if err != nil {
		t.Fatal(err)
	}
	orch := ingest.NewOrchestrator(parser.NewParser(), c, svc, st, ingest.WithDocumentsDir(t.TempDir()))
	srv := NewServer(Dependencies{
		Ingester:  orch,
		Retriever: rag.NewRetriever(svc, st),
		Assembler: rag.NewAssembler(""),
		Store:     st,
		Embedder:  svc,
	}, cfg, nil)
	return &testEnv{handler: srv.Handler(), store: st, server: srv}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) postJSON(t *testing.T, target string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, target, body, "application/json")
}

func multipartBody(t *testing.T, field, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	} else if err := mw.WriteField("note", "no file"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandlePing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/ping", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleIngestFile(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, "file", "hours.txt", "The STEM center is open 9am to 5pm on weekdays.")
	w := env.do(t, http.MethodPost, "/api/ingest", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Success    bool   `json:"success"`
		File       string `json:"file"`
		Type       string `json:"type"`
		Chunks     int    `json:"chunks"`
		Characters int    `json:"characters"`
	}
	decode(t, w, &out)
	if !out.Success || out.File != "hours.txt" || out.Type != "txt" || out.Chunks != 1 || out.Characters != 47 {
		t.Errorf("unexpected response: %+v", out)
	}
	if n, _ := env.store.CountAll(context.Background()); n != 1 {
		t.Errorf("stored chunks: got %d", n)
	}
}

func TestHandleIngestFile_badRequests(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "file", "grades.xlsx", "binary")
	w := env.do(t, http.MethodPost, "/api/ingest", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsupported: got %d", w.Code)
	}
	var unsupported struct {
		Error     string   `json:"error"`
		Supported []string `json:"supported"`
	}
	decode(t, w, &unsupported)
	if unsupported.Error != "Unsupported file type" || len(unsupported.Supported) == 0 {
		t.Errorf("unexpected response: %+v", unsupported)
	}

	body, ct = multipartBody(t, "", "", "")
	if w := env.do(t, http.MethodPost, "/api/ingest", body, ct); w.Code != http.StatusBadRequest {
		t.Errorf("missing file: got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/ingest", []byte("{}"), "application/json"); w.Code != http.StatusBadRequest {
		t.Errorf("not multipart: got %d", w.Code)
	}
}

func TestHandleIngestText(t *testing.T) {
	env := newTestEnv(t)
	w := env.postJSON(t, "/api/ingest/text", map[string]interface{}{
		"content":  "Calculus tutoring runs Tuesdays.",
		"source":   "tutoring-notes",
		"metadata": map[string]interface{}{"author": "front desk"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Source string `json:"source"`
		Chunks int    `json:"chunks"`
	}
	decode(t, w, &out)
	if out.Source != "tutoring-notes" || out.Chunks != 1 {
		t.Errorf("unexpected response: %+v", out)
	}

	for _, body := range []map[string]string{
		{"content": "", "source": "x"},
		{"content": "text", "source": " "},
	} {
		if w := env.postJSON(t, "/api/ingest/text", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: got %d", body, w.Code)
		}
	}
}

func TestHandleRetrieve(t *testing.T) {
	env := newTestEnv(t)
	text := "Physics help is available in room 204."
	if w := env.postJSON(t, "/api/ingest/text", map[string]string{"content": text, "source": "rooms"}); w.Code != http.StatusOK {
		t.Fatalf("ingest: %d", w.Code)
	}

	w := env.postJSON(t, "/api/retrieve", map[string]interface{}{"query": text, "topK": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Context []struct {
			Content    string  `json:"content"`
			Source     string  `json:"source"`
			Similarity float64 `json:"similarity"`
		} `json:"context"`
		Prompt string `json:"prompt"`
	}
	decode(t, w, &out)
	if len(out.Context) != 1 || out.Context[0].Source != "rooms" || out.Context[0].Similarity < 0.99 {
		t.Fatalf("unexpected context: %+v", out.Context)
	}
	if !strings.HasPrefix(out.Prompt, rag.SystemPrompt) || !strings.Contains(out.Prompt, "[Source: rooms]") {
		t.Errorf("prompt missing context: %q", out.Prompt)
	}

	if w := env.postJSON(t, "/api/retrieve", map[string]string{"query": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
	if w := env.postJSON(t, "/api/retrieve", map[string]interface{}{"query": "x", "threshold": 3}); w.Code != http.StatusBadRequest {
		t.Errorf("bad threshold: got %d", w.Code)
	}
}

func TestHandleRetrieve_emptyStoreReturnsBasePrompt(t *testing.T) {
	env := newTestEnv(t)
	w := env.postJSON(t, "/api/retrieve", map[string]string{"query": "when is the lab open?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Context []json.RawMessage `json:"context"`
		Prompt  string            `json:"prompt"`
	}
	decode(t, w, &out)
	if out.Context == nil || len(out.Context) != 0 {
		t.Errorf("context should be an empty array, got %v", out.Context)
	}
	if out.Prompt != rag.SystemPrompt {
		t.Error("prompt should be the base instructions")
	}
}

func TestHandleSources(t *testing.T) {
	env := newTestEnv(t)
	for _, src := range []string{"sub/hours.txt", "faq.md"} {
		if w := env.postJSON(t, "/api/ingest/text", map[string]string{"content": "content for " + src, "source": src}); w.Code != http.StatusOK {
			t.Fatalf("ingest %s: %d", src, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/api/sources", nil, "")
	var listed struct {
		Sources []struct {
			SourceFile string `json:"source_file"`
			Chunks     int64  `json:"chunks"`
		} `json:"sources"`
	}
	decode(t, w, &listed)
	if len(listed.Sources) != 2 {
		t.Fatalf("sources: %+v", listed.Sources)
	}

	w = env.do(t, http.MethodDelete, "/api/sources/sub/hours.txt", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d, body %s", w.Code, w.Body.String())
	}
	var deleted struct {
		Source  string `json:"source"`
		Deleted int64  `json:"deleted"`
	}
	decode(t, w, &deleted)
	if deleted.Source != "sub/hours.txt" || deleted.Deleted != 1 {
		t.Errorf("unexpected response: %+v", deleted)
	}
	if n, _ := env.store.CountAll(context.Background()); n != 1 {
		t.Errorf("remaining chunks: got %d", n)
	}
}

func TestHandleClearChunks(t *testing.T) {
	env := newTestEnv(t)
	env.postJSON(t, "/api/ingest/text", map[string]string{"content": "a", "source": "a"})
	env.postJSON(t, "/api/ingest/text", map[string]string{"content": "b", "source": "b"})

	if w := env.do(t, http.MethodDelete, "/api/chunks", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("without confirm: got %d", w.Code)
	}
	if n, _ := env.store.CountAll(context.Background()); n != 2 {
		t.Fatalf("chunks should survive an unconfirmed clear, got %d", n)
	}
	w := env.do(t, http.MethodDelete, "/api/chunks?confirm=true", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear: got %d", w.Code)
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, w, &out)
	if out.Deleted != 2 {
		t.Errorf("deleted: got %d", out.Deleted)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t)
	env.postJSON(t, "/api/ingest/text", map[string]string{"content": "a", "source": "a"})
	w := env.do(t, http.MethodGet, "/api/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["chunks"].(float64) != 1 || out["backend"] != "memory" || out["chunk_max_chars"].(float64) != 2000 {
		t.Errorf("unexpected status: %v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthy: got %d, body %s", w.Code, w.Body.String())
	}
	var out healthResponse
	decode(t, w, &out)
	if out.Status != "ok" || out.Services.RAG.Status != "ok" || !out.Services.Store.Configured {
		t.Errorf("unexpected health: %+v", out)
	}

	env.server.deps.Embedder = downEmbedder{}
	env.handler = env.server.Handler()
	w = env.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: got %d", w.Code)
	}
	out = healthResponse{}
	decode(t, w, &out)
	if out.Status != "degraded" || out.Services.Embedding.Status != "error" || out.Services.Embedding.Error == "" {
		t.Errorf("unexpected health: %+v", out)
	}
	if !errors.Is(downEmbedder{}.Ping(context.Background()), embedding.ErrBackendUnavailable) {
		t.Error("test double should report unavailable")
	}
}

func TestServer_withoutStoreIsDegraded(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Backend = "mock"
	cfg.Store.Backend = store.BackendPostgres
	svc := embedding.NewService(embedding.NewMockEmbedder(16))
	srv := NewServer(Dependencies{
		Retriever: rag.NewRetriever(svc, nil),
		Assembler: rag.NewAssembler(""),
		Embedder:  svc,
	}, cfg, nil)
	env := &testEnv{handler: srv.Handler(), server: srv}

	w := env.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: got %d, body %s", w.Code, w.Body.String())
	}
	var health healthResponse
	decode(t, w, &health)
	if health.Status != "degraded" || health.Services.Store.Configured || health.Services.RAG.Status != "error" {
		t.Errorf("unexpected health: %+v", health)
	}

	w = env.postJSON(t, "/api/retrieve", map[string]string{"query": "when is the lab open?"})
	if w.Code != http.StatusOK {
		t.Fatalf("retrieve: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Context []json.RawMessage `json:"context"`
		Prompt  string            `json:"prompt"`
	}
	decode(t, w, &out)
	if len(out.Context) != 0 || out.Prompt != rag.SystemPrompt {
		t.Errorf("retrieve without store should fail open, got %+v", out)
	}

	body, ct := multipartBody(t, "file", "hours.txt", "open daily")
	requests := []struct {
		method, target string
		body           []byte
		contentType    string
	}{
		{http.MethodGet, "/api/status", nil, ""},
		{http.MethodGet, "/api/sources", nil, ""},
		{http.MethodDelete, "/api/chunks?confirm=true", nil, ""},
		{http.MethodDelete, "/api/sources/hours.txt", nil, ""},
		{http.MethodPost, "/api/ingest", body, ct},
		{http.MethodPost, "/api/ingest/text", []byte(`{"content":"x","source":"faq"}`), "application/json"},
	}
	for _, rq := range requests {
		w := env.do(t, rq.method, rq.target, rq.body, rq.contentType)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: got %d, want 503", rq.method, rq.target, w.Code)
		}
	}
}
