// Package config provides configuration loading and structs for kagami.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override storage locations.
const (
	EnvIndexPath   = "KAGAMI_INDEX_PATH"
	EnvCatalogPath = "KAGAMI_CATALOG_PATH"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StorageConfig holds paths for the vector index and the build catalog.
type StorageConfig struct {
	IndexPath   string `yaml:"index_path"`
	CatalogPath string `yaml:"catalog_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "onnx" (CLIP encoders via ONNX Runtime) or "mock".
	Provider        string `yaml:"provider"`
	OnnxLibraryPath string `yaml:"onnx_library_path"`
	ImageModelPath  string `yaml:"image_model_path"`
	TextModelPath   string `yaml:"text_model_path"`
	Dimensions      int    `yaml:"dimensions"`
	ImageSize       int    `yaml:"image_size"`
	ContextLength   int    `yaml:"context_length"`
	CacheSize       int    `yaml:"cache_size"`
	// TokenizerVocabPath and TokenizerMergesPath point at the CLIP vocab.json and
	// merges.txt. Without them text is tokenized by word hashes, which a stock
	// CLIP text encoder does not understand.
	TokenizerVocabPath  string `yaml:"tokenizer_vocab_path"`
	TokenizerMergesPath string `yaml:"tokenizer_merges_path"`
}

// IndexConfig holds index build settings.
type IndexConfig struct {
	Type    string `yaml:"type"`
	Workers int    `yaml:"workers"`
	// Extensions limits which directory entries are candidates (empty = every regular file).
	Extensions []string `yaml:"extensions"`
	KeepBuilds int      `yaml:"keep_builds"`
}

// QueryConfig holds query settings.
type QueryConfig struct {
	DefaultK int `yaml:"default_k"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and then the storage environment overrides.
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
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	for _, p := range []*string{&cfg.Embedding.OnnxLibraryPath, &cfg.Embedding.TokenizerVocabPath, &cfg.Embedding.TokenizerMergesPath} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}

	ApplyEnv(&cfg)
	return &cfg, nil
}

// ApplyEnv overrides storage locations from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvIndexPath); v != "" {
		cfg.Storage.IndexPath = v
	}
	if v := os.Getenv(EnvCatalogPath); v != "" {
		cfg.Storage.CatalogPath = v
	}
}

// Save writes the config to path, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
