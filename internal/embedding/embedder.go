// Package embedding maps text to fixed-length vectors through a pluggable
// backend (Ollama over HTTP, a local ONNX model, or a deterministic mock) and
// batches requests for ingestion.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable means the backend could not be reached.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
	// ErrEmbeddingFailed covers every other backend failure.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// ProbeText is embedded to discover the backend's vector dimension.
const ProbeText = "test"

// Embedder produces a vector embedding for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Name identifies the backend and model in logs and health output.
	Name() string
	Close() error
}

// Pinger is implemented by backends with a cheap reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelLister is implemented by backends that can list installed models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// classify wraps err in ErrEmbeddingFailed unless it already carries one of
// the package sentinels or is a context error.
func classify(err error) error {
	if err == nil ||
		errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrEmbeddingFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrEmbeddingFailed, err)
}
