package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  host: "127.0.0.1"
  port: 9000
  request_timeout: 5s
storage:
  database_path: "./retriever.db"
embedding:
  dimensions: 64
  retry:
    max_attempts: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, filepath.Join(dir, "retriever.db"), cfg.Storage.DatabasePath)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
	assert.Equal(t, uint(2), cfg.Embedding.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Embedding.Retry.InitialInterval)
	assert.False(t, cfg.Debug)
}

func TestLoad_defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "debug: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, ProviderHash, cfg.Embedding.Provider)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Empty(t, cfg.Storage.LexicalIndexDir)
	assert.Empty(t, cfg.ProjectsFile)
}

func TestLoad_memoryDatabaseUntouched(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "storage:\n  database_path: \":memory:\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.DatabasePath)
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"http provider without url", "embedding:\n  provider: http\n"},
		{"unknown provider", "embedding:\n  provider: onnx\n"},
		{"overlap not below size", "search:\n  chunk_size: 10\n  chunk_overlap: 10\n"},
		{"top_k above max", "search:\n  default_top_k: 500\n"},
		{"ratio out of range", "compaction:\n  tombstone_ratio: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Search.RRFK = 10
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Search.RRFK)
	assert.Equal(t, cfg.Server.RequestTimeout, loaded.Server.RequestTimeout)
}

func TestLoadProjects(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "projects.yaml", `
projects:
  - id: docs
    key_hash: "$2a$10$abcdefghijklmnopqrstuuD7Qb3rW0mYl7o6Qe1f5t8n7yqQ6lY9e"
    rate_limit: 5
    capacity_limit: 100
  - id: wiki
    key_hash: "$2a$10$abcdefghijklmnopqrstuuD7Qb3rW0mYl7o6Qe1f5t8n7yqQ6lY9e"
`)
	seeds, err := LoadProjects(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "docs", seeds[0].ID)
	assert.Equal(t, 5.0, seeds[0].RateLimit)
	assert.Equal(t, 0, seeds[1].CapacityLimit)
}

func TestLoadProjects_rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "projects:\n  - key_hash: \"$2a$10$x\"\n"},
		{"plaintext key", "projects:\n  - id: a\n    key_hash: secret\n"},
		{"negative limit", "projects:\n  - id: a\n    key_hash: \"$2a$10$x\"\n    burst: -1\n"},
		{"duplicate", "projects:\n  - id: a\n    key_hash: \"$2a$10$x\"\n  - id: a\n    key_hash: \"$2a$10$x\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "projects.yaml", tt.content)
			_, err := LoadProjects(path)
			assert.Error(t, err)
		})
	}
}
