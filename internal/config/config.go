// Package config provides configuration loading and structs for the retriever service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool             `yaml:"debug"`
	Server       ServerConfig     `yaml:"server"`
	Storage      StorageConfig    `yaml:"storage"`
	Embedding    EmbeddingConfig  `yaml:"embedding"`
	Search       SearchConfig     `yaml:"search"`
	Quota        QuotaConfig      `yaml:"quota"`
	Compaction   CompactionConfig `yaml:"compaction"`
	ProjectsFile string           `yaml:"projects_file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds paths for the document database and lexical indexes.
// An empty LexicalIndexDir keeps every project's lexical index in memory.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	LexicalIndexDir string `yaml:"lexical_index_dir"`
}

// EmbeddingConfig selects and tunes the embedding gateway.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	Retry      RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds the embedding retry loop.
type RetryConfig struct {
	MaxAttempts         uint          `yaml:"max_attempts"`
	InitialInterval     time.Duration `yaml:"initial_interval"`
	MaxInterval         time.Duration `yaml:"max_interval"`
	Multiplier          float64       `yaml:"multiplier"`
	RandomizationFactor float64       `yaml:"randomization_factor"`
}

// SearchConfig holds chunking and retrieval settings.
type SearchConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	DefaultTopK    int `yaml:"default_top_k"`
	MaxTopK        int `yaml:"max_top_k"`
	DefaultVectorK int `yaml:"default_vector_k"`
	MaxVectorK     int `yaml:"max_vector_k"`
	LexicalK       int `yaml:"lexical_k"`
	RRFK           int `yaml:"rrf_k"`
}

// QuotaConfig holds the limits applied to projects that do not set their own.
type QuotaConfig struct {
	DefaultRateLimit float64 `yaml:"default_rate_limit"`
	DefaultBurst     int     `yaml:"default_burst"`
	DefaultCapacity  int     `yaml:"default_capacity"`
	BcryptCost       int     `yaml:"bcrypt_cost"`
}

// CompactionConfig controls the background vector purge.
type CompactionConfig struct {
	Interval       time.Duration `yaml:"interval"`
	TombstoneRatio float64       `yaml:"tombstone_ratio"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed, or the result is invalid.
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
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.LexicalIndexDir != "" {
		cfg.Storage.LexicalIndexDir = expandPath(cfg.Storage.LexicalIndexDir, configDir)
	}
	if cfg.ProjectsFile != "" {
		cfg.ProjectsFile = expandPath(cfg.ProjectsFile, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied and no file backing it.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedding.Provider {
	case ProviderHash:
	case ProviderHTTP:
		if c.Embedding.BaseURL == "" {
			errs = append(errs, errors.New("embedding.base_url is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if c.Search.ChunkOverlap >= c.Search.ChunkSize {
		errs = append(errs, errors.New("search.chunk_overlap must be smaller than search.chunk_size"))
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		errs = append(errs, errors.New("search.default_top_k exceeds search.max_top_k"))
	}
	if c.Search.DefaultVectorK > c.Search.MaxVectorK {
		errs = append(errs, errors.New("search.default_vector_k exceeds search.max_vector_k"))
	}
	if c.Compaction.TombstoneRatio < 0 || c.Compaction.TombstoneRatio > 1 {
		errs = append(errs, errors.New("compaction.tombstone_ratio must be within [0, 1]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is left alone.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
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
