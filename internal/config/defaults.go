package config

import "time"

// Embedding providers.
const (
	ProviderHash = "hash"
	ProviderHTTP = "http"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 8 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/retriever/data/retriever.db"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHash
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	applyRetryDefaults(&cfg.Embedding.Retry)

	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 200
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 40
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DefaultVectorK == 0 {
		cfg.Search.DefaultVectorK = 20
	}
	if cfg.Search.MaxVectorK == 0 {
		cfg.Search.MaxVectorK = 1000
	}
	if cfg.Search.LexicalK == 0 {
		cfg.Search.LexicalK = 50
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}

	if cfg.Quota.DefaultRateLimit == 0 {
		cfg.Quota.DefaultRateLimit = 10
	}
	if cfg.Quota.DefaultBurst == 0 {
		cfg.Quota.DefaultBurst = 20
	}
	if cfg.Quota.DefaultCapacity == 0 {
		cfg.Quota.DefaultCapacity = 10000
	}
	if cfg.Quota.BcryptCost == 0 {
		cfg.Quota.BcryptCost = 10
	}

	if cfg.Compaction.Interval == 0 {
		cfg.Compaction.Interval = time.Minute
	}
	if cfg.Compaction.TombstoneRatio == 0 {
		cfg.Compaction.TombstoneRatio = 0.1
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 4
	}
	if r.InitialInterval == 0 {
		r.InitialInterval = 200 * time.Millisecond
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = 2 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
	if r.RandomizationFactor == 0 {
		r.RandomizationFactor = 0.5
	}
}
