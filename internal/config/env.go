package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables that override file values.
const (
	EnvPort           = "PORT"
	EnvOllamaHost     = "OLLAMA_HOST"
	EnvOllamaModel    = "OLLAMA_MODEL"
	EnvEmbeddingModel = "EMBEDDING_MODEL"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvStoreBackend   = "STORE_BACKEND"
	EnvDocumentsDir   = "DOCUMENTS_DIR"
)

// ApplyEnv overrides cfg with values from the process environment.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := get(EnvOllamaHost); ok {
		cfg.Ollama.Host = v
	}
	if v, ok := get(EnvOllamaModel); ok {
		cfg.Ollama.Model = v
	}
	if v, ok := get(EnvEmbeddingModel); ok {
		cfg.Embedding.Model = v
	}
	if v, ok := get(EnvDatabaseURL); ok {
		cfg.Store.DatabaseURL = v
	}
	if v, ok := get(EnvStoreBackend); ok {
		cfg.Store.Backend = v
	}
	if v, ok := get(EnvDocumentsDir); ok {
		cfg.Documents.Directory = v
	}
	return nil
}
