package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/indexer"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/quota"
	"github.com/hyperjump/retriever/internal/search"
	"github.com/hyperjump/retriever/internal/server"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/tenant"
	"github.com/hyperjump/retriever/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || debugFlag),
		zap.String("embedding_provider", cfg.Embedding.Provider))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if cfg.ProjectsFile != "" {
		if err := seedProjects(ctx, components.Registry, cfg.ProjectsFile, logger); err != nil {
			return err
		}
		reloader := watcher.NewWatcher(cfg.ProjectsFile, func(path string) {
			if err := seedProjects(ctx, components.Registry, path, logger); err != nil {
				logger.Warn("projects file reload failed", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err := reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch projects file: %w", err)
		}
		defer reloader.Stop()
	}

	go components.Registry.RunCompactor(ctx, cfg.Compaction.Interval, cfg.Compaction.TombstoneRatio)

	srv := server.NewServer(components.Registry, components.Engine, components.Indexer, &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// seedProjects registers every project of the projects file. Entries that fail are logged
// and skipped so one bad entry does not block the rest.
func seedProjects(ctx context.Context, registry *tenant.Registry, path string, logger *zap.Logger) error {
	seeds, err := config.LoadProjects(path)
	if err != nil {
		return err
	}
	projects := make([]*models.Project, len(seeds))
	for i, s := range seeds {
		projects[i] = s.Project()
	}
	n, err := registry.Seed(ctx, projects)
	if err != nil {
		logger.Warn("some projects were not registered", zap.Error(err))
	}
	logger.Info("projects file applied", zap.String("path", path), zap.Int("registered", n))
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Registry *tenant.Registry
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

// Close releases the components in reverse order of creation.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	c.Embedder, err = newEmbedder(cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Registry = tenant.NewRegistry(store, tenant.Options{
		Dimensions:      cfg.Embedding.Dimensions,
		LexicalIndexDir: cfg.Storage.LexicalIndexDir,
		Defaults:        defaultLimits(cfg.Quota),
	}, tenant.WithLogger(logger))
	if err := c.Registry.Open(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open projects: %w", err)
	}

	c.Engine = search.NewEngine(store, c.Embedder, search.Options{
		Limits:   queryLimits(cfg.Search),
		LexicalK: cfg.Search.LexicalK,
		RRFK:     cfg.Search.RRFK,
	}, search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(store, c.Embedder, cfg.Search.ChunkSize, cfg.Search.ChunkOverlap,
		indexer.WithLogger(logger))
	return c, nil
}

// newEmbedder builds the embedding stack: backend, then the retrying gateway, then the cache.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var backend embedding.Embedder
	switch cfg.Provider {
	case config.ProviderHTTP:
		e, err := embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		backend = e
	case config.ProviderHash:
		backend = embedding.NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, errors.New("unknown embedding provider " + cfg.Provider)
	}

	gateway := embedding.NewGateway(backend,
		embedding.WithTimeout(cfg.Timeout),
		embedding.WithRetryPolicy(embedding.RetryPolicy{
			MaxAttempts:         cfg.Retry.MaxAttempts,
			InitialInterval:     cfg.Retry.InitialInterval,
			MaxInterval:         cfg.Retry.MaxInterval,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: cfg.Retry.RandomizationFactor,
		}),
		embedding.WithLogger(logger))

	cached, err := embedding.NewCachedEmbedder(gateway, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("cache_size", cfg.CacheSize))
	return cached, nil
}

func defaultLimits(q config.QuotaConfig) quota.Limits {
	return quota.Limits{
		RateLimit: q.DefaultRateLimit,
		Burst:     q.DefaultBurst,
		Capacity:  q.DefaultCapacity,
	}
}

func queryLimits(s config.SearchConfig) models.QueryLimits {
	return models.QueryLimits{
		DefaultTopK:    s.DefaultTopK,
		MaxTopK:        s.MaxTopK,
		DefaultVectorK: s.DefaultVectorK,
		MaxVectorK:     s.MaxVectorK,
	}
}
