package embedding

import (
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendOllama = "ollama"
	BackendONNX   = "onnx"
	BackendMock   = "mock"
)

// BackendConfig selects and configures an embedding backend.
type BackendConfig struct {
	Backend           string
	Host              string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	ModelPath         string
	Dimensions        int
	MaxTokens         int
}

// New builds the backend named by cfg.Backend.
func New(cfg BackendConfig) (Embedder, error) {
	switch cfg.Backend {
	case BackendOllama, "":
		return NewOllamaEmbedder(OllamaConfig{
			Host:              cfg.Host,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case BackendONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case BackendMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}
