package config

import (
	"fmt"

	"github.com/hyperjump/stemrag/internal/chunker"
)

// Validate checks that the settings needed to run are present. forIngest
// adds the requirements of ingestion entry points. Missing settings wrap
// ErrConfigurationMissing; malformed ones return a plain error.
func (c *Config) Validate(forIngest bool) error {
	switch c.Embedding.Backend {
	case "ollama":
		if c.Ollama.Host == "" {
			return missing("ollama.host", EnvOllamaHost)
		}
		if c.Embedding.Model == "" {
			return missing("embedding.model", EnvEmbeddingModel)
		}
	case "onnx":
		if c.Embedding.ModelPath == "" {
			return missing("embedding.model_path", "")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown embedding backend %q", c.Embedding.Backend)
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DatabasePath == "" {
			return missing("store.database_path", "")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return missing("store.database_url", EnvDatabaseURL)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if _, err := chunker.NewChunker(c.Chunking.Options()); err != nil {
		return fmt.Errorf("invalid chunking settings: %w", err)
	}
	if t := c.Retrieval.ThresholdOrDefault(); t < -1 || t > 1 {
		return fmt.Errorf("retrieval.threshold must be between -1 and 1, got %v", t)
	}

	if forIngest && c.Documents.Directory == "" {
		return missing("documents.directory", EnvDocumentsDir)
	}
	return nil
}

func missing(key, env string) error {
	if env == "" {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, key)
	}
	return fmt.Errorf("%w: %s (or %s)", ErrConfigurationMissing, key, env)
}
