package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Ensure OllamaEmbedder implements the backend interfaces.
var (
	_ Embedder    = (*OllamaEmbedder)(nil)
	_ Pinger      = (*OllamaEmbedder)(nil)
	_ ModelLister = (*OllamaEmbedder)(nil)
)

// Default Ollama configuration values.
const (
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
	DefaultOllamaTimeout = 30 * time.Second
)

// OllamaConfig holds configuration for the Ollama embedding backend.
type OllamaConfig struct {
	// Host is the Ollama API base URL.
	Host string
	// Model is the embedding model name.
	Model string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// RequestsPerSecond throttles embedding requests; zero disables throttling.
	RequestsPerSecond float64
}

// OllamaEmbedder generates embeddings with a local or remote Ollama server.
type OllamaEmbedder struct {
	client  *http.Client
	host    string
	model   string
	limiter *rate.Limiter
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder creates an Ollama backend, applying defaults for empty fields.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	e := &OllamaEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return e
}

// Embed posts text to /api/embeddings.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbeddingFailed, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: model %s returned no embedding", ErrEmbeddingFailed, e.model)
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// ListModels returns the names reported by /api/tags.
func (e *OllamaEmbedder) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode model list: %v", ErrEmbeddingFailed, err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping validates the server is reachable without running inference.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	_, err := e.ListModels(ctx)
	return err
}

// Name returns "ollama/<model>".
func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.model
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// Host returns the Ollama base URL.
func (e *OllamaEmbedder) Host() string {
	return e.host
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// do sends req and maps transport failures and gateway statuses to
// ErrBackendUnavailable, other non-200 statuses to ErrEmbeddingFailed.
func (e *OllamaEmbedder) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.host, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	sentinel := ErrEmbeddingFailed
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		sentinel = ErrBackendUnavailable
	}
	return nil, fmt.Errorf("%w: ollama status %d: %s", sentinel, resp.StatusCode, strings.TrimSpace(string(msg)))
}

// HasModel reports whether models contains name, comparing on the name before
// any ":tag" suffix so "nomic-embed-text" matches "nomic-embed-text:latest".
func HasModel(models []string, name string) bool {
	base, _, _ := strings.Cut(name, ":")
	if base == "" {
		return false
	}
	for _, m := range models {
		if strings.Contains(m, base) {
			return true
		}
	}
	return false
}
