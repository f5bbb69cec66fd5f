package config

import "time"

// Default values applied to zero fields.
const (
	DefaultPort           = 3001
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultOllamaModel    = "llama3.1:8b"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultTopK           = 3
	DefaultMaxTopK        = 20
	DefaultThreshold      = 0.5
	DefaultCacheSize      = 1000
	DefaultDatabasePath   = "./data/stemrag.db"
	DefaultDocumentsDir   = "./documents"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = DefaultOllamaHost
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = DefaultOllamaModel
	}
	if cfg.Ollama.Timeout == 0 {
		cfg.Ollama.Timeout = 60 * time.Second
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 10
	}
	if cfg.Embedding.CacheSize == nil {
		size := DefaultCacheSize
		cfg.Embedding.CacheSize = &size
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 2000
	}
	if cfg.Chunking.OverlapChars == nil {
		overlap := 200
		cfg.Chunking.OverlapChars = &overlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = DefaultMaxTopK
	}
	if cfg.Retrieval.Threshold == nil {
		t := DefaultThreshold
		cfg.Retrieval.Threshold = &t
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = DefaultDatabasePath
	}
	if cfg.Documents.Directory == "" {
		cfg.Documents.Directory = DefaultDocumentsDir
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
