//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// ONNXEmbedder is unavailable without CGO (see onnx.go for the real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns ErrBackendUnavailable when built without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO_ENABLED=1 and onnxruntime", ErrBackendUnavailable)
}

// Embed always fails without CGO.
func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrBackendUnavailable
}

// Name returns "onnx".
func (e *ONNXEmbedder) Name() string { return "onnx" }

// Close is a no-op.
func (e *ONNXEmbedder) Close() error { return nil }
