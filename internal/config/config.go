// Package config provides configuration loading and structs for the stemrag server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/stemrag/internal/chunker"
)

// ErrConfigurationMissing is returned by Validate when a required setting is absent.
var ErrConfigurationMissing = errors.New("configuration missing")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
	Documents DocumentsConfig `yaml:"documents"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// OllamaConfig holds the Ollama endpoint shared by embedding and generation.
type OllamaConfig struct {
	Host string `yaml:"host"`
	// Model is the generation model; only reported by health checks.
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond throttles embedding calls; zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Backend is "ollama", "onnx" or "mock".
	Backend   string `yaml:"backend"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	// CacheSize is the number of query embeddings kept in memory; an explicit
	// zero disables the cache.
	CacheSize *int `yaml:"cache_size"`
	// ONNX backend settings.
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// ChunkingConfig holds chunker settings. OverlapChars is a pointer so an
// explicit zero disables overlap instead of selecting the default.
type ChunkingConfig struct {
	MaxChars     int      `yaml:"max_chars"`
	OverlapChars *int     `yaml:"overlap_chars"`
	Separators   []string `yaml:"separators"`
}

// Options converts the settings to chunker options.
func (c ChunkingConfig) Options() chunker.Options {
	opts := chunker.Options{MaxChars: c.MaxChars, OverlapChars: chunker.DefaultOverlapChars, Separators: c.Separators}
	if c.OverlapChars != nil {
		opts.OverlapChars = *c.OverlapChars
	}
	return opts
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK    int `yaml:"top_k"`
	MaxTopK int `yaml:"max_top_k"`
	// Threshold is a pointer so zero can be configured explicitly.
	Threshold *float64 `yaml:"threshold"`
	// Strict makes retrieval failures visible instead of returning no context.
	Strict bool `yaml:"strict"`
	// MaxContextChars bounds the assembled context block; zero means unlimited.
	MaxContextChars  int    `yaml:"max_context_chars"`
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// ThresholdOrDefault returns the configured threshold, or 0.5 when unset.
func (r RetrievalConfig) ThresholdOrDefault() float64 {
	if r.Threshold != nil {
		return *r.Threshold
	}
	return DefaultThreshold
}

// CacheSizeOrDefault returns the query cache capacity, or 1000 when unset.
func (e EmbeddingConfig) CacheSizeOrDefault() int {
	if e.CacheSize != nil {
		return *e.CacheSize
	}
	return DefaultCacheSize
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
}

// DocumentsConfig locates the documents batch ingestion reads.
type DocumentsConfig struct {
	Directory string `yaml:"directory"`
}

// WatchConfig holds documents directory watch settings.
type WatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Debounce  time.Duration `yaml:"debounce"`
	Recursive *bool         `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	cfg.Documents.Directory = expandPath(cfg.Documents.Directory, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Retrieval.SystemPromptFile != "" {
		cfg.Retrieval.SystemPromptFile = expandPath(cfg.Retrieval.SystemPromptFile, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
