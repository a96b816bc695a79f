// Package main is the retriever CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/retriever/config.yaml"
	serviceName       = "retriever"
)

var (
	configPath string
	debugFlag  bool
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "retriever",
		Short: "Multi-tenant hybrid retrieval service",
		Long: `retriever serves per-project hybrid (lexical + vector) document retrieval over HTTP.

The server and project commands work on the local database named by --config.
The ingest, query and delete commands are API clients configured through
RETRIEVER_URL, RETRIEVER_PROJECT_ID and RETRIEVER_API_KEY (a .env file is read if present).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(newServerCmd(), newProjectCmd(), newIngestCmd(), newQueryCmd(), newDeleteCmd())
	return root
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When neither exists the
// built-in defaults are used. Returns the config and the path that was loaded, or ""
// for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := utils.NewLogger(cfg.Debug || debugFlag, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
